package kernel

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"kforge/internal/log"
	"kforge/internal/ops"
)

const (
	kernelTagsURL = "https://git.kernel.org/pub/scm/linux/kernel/git/stable/linux.git/refs/tags"
	kernelBaseURL = "https://git.kernel.org/pub/scm/linux/kernel/git/stable/linux.git"
)

// versionRe matches release tags like v6.13 and v6.13.2, excluding -rc tags.
var versionRe = regexp.MustCompile(`^v\d+\.\d+(\.\d+)?$`)

// FetchMsg is the closed set of terminal messages for a version listing.
type FetchMsg interface{ fetchMsg() }

// FetchDone carries the release list, newest first.
type FetchDone struct{ Versions []VersionInfo }

// FetchError carries the reason the listing failed.
type FetchError struct{ Reason string }

func (FetchDone) fetchMsg()  {}
func (FetchError) fetchMsg() {}

// CommitInfo is one entry of a shortlog between two releases.
type CommitInfo struct {
	Hash    string
	Subject string
	Author  string
}

// ShortlogMsg is the closed set of terminal messages for a shortlog fetch.
type ShortlogMsg interface{ shortlogMsg() }

// ShortlogDone carries the commit list in page order.
type ShortlogDone struct{ Commits []CommitInfo }

// ShortlogError carries the reason the fetch failed.
type ShortlogError struct{ Reason string }

func (ShortlogDone) shortlogMsg()  {}
func (ShortlogError) shortlogMsg() {}

// FetchHandle is the polling endpoint for a dispatched version listing.
type FetchHandle struct {
	ID string
	*ops.Mailbox[FetchMsg]
}

// ShortlogHandle is the polling endpoint for a dispatched shortlog fetch.
type ShortlogHandle struct {
	ID string
	*ops.Mailbox[ShortlogMsg]
}

// Fetcher lists stable kernel releases by scraping the cgit tags page.
type Fetcher struct {
	client  *http.Client
	tagsURL string
	baseURL string
}

// NewFetcher creates a fetcher against git.kernel.org.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, tagsURL: kernelTagsURL, baseURL: kernelBaseURL}
}

// NewFetcherForMirror creates a fetcher against a cgit mirror rooted at
// baseURL.
func NewFetcherForMirror(client *http.Client, baseURL string) *Fetcher {
	f := NewFetcher(client)
	f.baseURL = baseURL
	f.tagsURL = baseURL + "/refs/tags"
	return f
}

// FetchVersions dispatches a release listing. The worker posts exactly one
// terminal message and closes the mailbox.
func (f *Fetcher) FetchVersions() *FetchHandle {
	handle := &FetchHandle{ID: ops.NewID(), Mailbox: ops.NewMailbox[FetchMsg]()}
	log.Debug(log.CatFetch, "version fetch dispatched", "op", handle.ID)

	go func() {
		defer handle.Close()
		versions, err := f.fetchVersions()
		if err != nil {
			log.Warn(log.CatFetch, "version fetch failed", "op", handle.ID, "error", err)
			handle.Post(FetchError{Reason: err.Error()})
			return
		}
		log.Debug(log.CatFetch, "version fetch done", "op", handle.ID, "count", len(versions))
		handle.Post(FetchDone{Versions: versions})
	}()
	return handle
}

func (f *Fetcher) fetchVersions() ([]VersionInfo, error) {
	body, err := f.get(f.tagsURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return parseVersions(body)
}

// parseVersions extracts release tags from a cgit refs/tags page.
// cgit renders tags as table rows: the first link holds the tag name, the
// third cell the age/date.
func parseVersions(r io.Reader) ([]VersionInfo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing tags page: %w", err)
	}

	var versions []VersionInfo
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a").First()
		text := strings.TrimSpace(link.Text())
		if !versionRe.MatchString(text) {
			return
		}
		date := strings.TrimSpace(row.Find("td:nth-child(3)").First().Text())
		versions = append(versions, VersionInfo{Version: text, Date: date})
	})

	// Newest first, deduplicated.
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i].Version, versions[j].Version) > 0
	})
	deduped := versions[:0]
	for _, v := range versions {
		if len(deduped) == 0 || deduped[len(deduped)-1].Version != v.Version {
			deduped = append(deduped, v)
		}
	}
	return deduped, nil
}

// FetchShortlog dispatches a commit listing between two release tags.
func (f *Fetcher) FetchShortlog(fromVersion, toVersion string) *ShortlogHandle {
	handle := &ShortlogHandle{ID: ops.NewID(), Mailbox: ops.NewMailbox[ShortlogMsg]()}
	log.Debug(log.CatFetch, "shortlog fetch dispatched",
		"op", handle.ID, "from", fromVersion, "to", toVersion)

	go func() {
		defer handle.Close()
		url := fmt.Sprintf("%s/log/?id=%s&id2=%s", f.baseURL, toVersion, fromVersion)
		body, err := f.get(url)
		if err != nil {
			handle.Post(ShortlogError{Reason: err.Error()})
			return
		}
		defer func() { _ = body.Close() }()

		commits, err := parseShortlog(body)
		if err != nil {
			handle.Post(ShortlogError{Reason: err.Error()})
			return
		}
		handle.Post(ShortlogDone{Commits: commits})
	}()
	return handle
}

// parseShortlog extracts commits from a cgit log page. Each data row holds
// the subject link in the second cell and the author in the third; the
// commit hash hides in the link's ?id= query parameter.
func parseShortlog(r io.Reader) ([]CommitInfo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing log page: %w", err)
	}

	var commits []CommitInfo
	doc.Find("table.list tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td:nth-child(2) a").First()
		subject := strings.TrimSpace(link.Text())
		if subject == "" {
			return // header row
		}

		var hash string
		if href, ok := link.Attr("href"); ok {
			if _, id, found := strings.Cut(href, "id="); found {
				hash = id
				if len(hash) > 12 {
					hash = hash[:12]
				}
			}
		}
		author := strings.TrimSpace(row.Find("td:nth-child(3)").First().Text())

		commits = append(commits, CommitInfo{Hash: hash, Subject: subject, Author: author})
	})
	return commits, nil
}

// get issues a blocking GET and returns the body on 2xx.
func (f *Fetcher) get(url string) (io.ReadCloser, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}
