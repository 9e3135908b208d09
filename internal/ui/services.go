// Package ui contains the Bubble Tea interactive surface: a tabbed view
// over kernel versions, the linux-tkg config, userpatches and the build.
package ui

import (
	"kforge/internal/config"
	"kforge/internal/fetch"
	"kforge/internal/history"
	"kforge/internal/kernel"
	"kforge/internal/registry"
	"kforge/internal/workdir"
)

// Services are the shared backends handed to every tab. All of them are
// safe to call from the single Update goroutine; blocking work happens in
// the workers they dispatch.
type Services struct {
	Cfg        config.Config
	ConfigPath string

	Fetcher    *kernel.Fetcher
	Downloader *fetch.Downloader
	Checker    *registry.Checker
	Registry   *registry.Store
	History    *history.Store
	Work       *workdir.Dir
}
