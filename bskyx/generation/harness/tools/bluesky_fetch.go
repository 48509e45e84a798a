package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	BlueskyFetchToolName        = "bluesky_fetch"
	blueskyFetchToolDescription = "Useful for fetching the actual text content of a Bluesky post given its URL. Input should be the full Bluesky post URL."

	invalidURLMessage  = "Error: Invalid Bluesky URL format."
	unavailableMessage = "Error: Could not retrieve post content. Post might be deleted or private."
)

// ErrPostUnavailable is returned when the thread holds no readable post.
var ErrPostUnavailable = errors.New("post unavailable")

// BlueskyConfig configures the post fetcher.
type BlueskyConfig struct {
	HTTPConfig
	APIHost string // AppView serving unauthenticated XRPC reads
}

// BlueskyFetchTool reads a public post through the AppView XRPC API.
type BlueskyFetchTool struct {
	cfg BlueskyConfig
}

// NewBlueskyFetchTool creates a new post fetcher.
func NewBlueskyFetchTool(cfg BlueskyConfig) *BlueskyFetchTool {
	cfg.APIHost = strings.TrimRight(cfg.APIHost, "/")
	return &BlueskyFetchTool{cfg: cfg}
}

func (t *BlueskyFetchTool) Name() string        { return BlueskyFetchToolName }
func (t *BlueskyFetchTool) Description() string { return blueskyFetchToolDescription }
func (t *BlueskyFetchTool) InputKey() string    { return "url" }

// PostRef identifies a post by author handle (or DID) and record key.
type PostRef struct {
	Handle string
	RKey   string
}

// ParsePostURL extracts the handle and record key of a https://bsky.app/profile/{handle}/post/{rkey} URL.
// Anything after the record key is ignored.
func ParsePostURL(raw string) (PostRef, error) {
	if !strings.Contains(raw, "bsky.app/profile/") || !strings.Contains(raw, "/post/") {
		return PostRef{}, errors.New("invalid Bluesky URL format")
	}
	rest := strings.SplitN(raw, "bsky.app/profile/", 2)[1]
	parts := strings.SplitN(rest, "/post/", 2)
	if len(parts) != 2 {
		return PostRef{}, errors.New("invalid Bluesky URL format")
	}

	ref := PostRef{Handle: strings.TrimSpace(parts[0]), RKey: parts[1]}
	if idx := strings.IndexAny(ref.RKey, "/?#"); idx >= 0 {
		ref.RKey = ref.RKey[:idx]
	}
	if ref.Handle == "" || strings.Contains(ref.Handle, "/") || ref.RKey == "" {
		return PostRef{}, fmt.Errorf("invalid Bluesky URL format: %q", raw)
	}
	return ref, nil
}

// Execute fetches the post text and image URLs.
func (t *BlueskyFetchTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	raw := strings.TrimSpace(args["url"])
	if !strings.Contains(raw, "bsky.app/profile/") || !strings.Contains(raw, "/post/") {
		return invalidURLMessage, nil
	}
	ref, err := ParsePostURL(raw)
	if err != nil {
		return fmt.Sprintf("Error fetching Bluesky post: %v", err), nil
	}

	post, err := t.FetchPost(ctx, ref)
	if errors.Is(err, ErrPostUnavailable) {
		return unavailableMessage, nil
	}
	if err != nil {
		return fmt.Sprintf("Error fetching Bluesky post: %v", err), nil
	}
	return FormatPost(ref.Handle, post), nil
}

// Post is the part of a fetched post the tool reports.
type Post struct {
	URI       string
	Handle    string
	Text      string
	ImageURLs []string
}

// FormatPost renders the observation text for a fetched post.
func FormatPost(handle string, post Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Post Content by @%s:\n%s", handle, post.Text)
	for _, u := range post.ImageURLs {
		fmt.Fprintf(&b, "\nImage URL: %s", u)
	}
	return b.String()
}

// FetchPost resolves the author and reads the post thread root.
func (t *BlueskyFetchTool) FetchPost(ctx context.Context, ref PostRef) (Post, error) {
	client := t.newXRPCClient()

	did := ref.Handle
	if !strings.HasPrefix(did, "did:") {
		resolved, err := atproto.IdentityResolveHandle(ctx, client, ref.Handle)
		if err != nil {
			return Post{}, fmt.Errorf("resolve handle %s: %w", ref.Handle, classifyXRPC(err))
		}
		if resolved.Did == "" {
			return Post{}, fmt.Errorf("resolve handle %s: empty DID", ref.Handle)
		}
		did = resolved.Did
	}

	uri := fmt.Sprintf("at://%s/app.bsky.feed.post/%s", did, ref.RKey)
	out, err := bsky.FeedGetPostThread(ctx, client, 0, 0, uri)
	if err != nil {
		return Post{}, classifyXRPC(err)
	}
	if out.Thread == nil || out.Thread.FeedDefs_ThreadViewPost == nil || out.Thread.FeedDefs_ThreadViewPost.Post == nil {
		return Post{}, ErrPostUnavailable
	}
	return postFromView(out.Thread.FeedDefs_ThreadViewPost.Post), nil
}

// newXRPCClient builds a client for one invocation so the tool keeps no connection state between calls.
func (t *BlueskyFetchTool) newXRPCClient() *xrpc.Client {
	client := &xrpc.Client{
		Client: t.cfg.newClient(),
		Host:   t.cfg.APIHost,
	}
	if t.cfg.UserAgent != "" {
		ua := t.cfg.UserAgent
		client.UserAgent = &ua
	}
	return client
}

func postFromView(view *bsky.FeedDefs_PostView) Post {
	post := Post{URI: view.Uri}
	if view.Author != nil {
		post.Handle = view.Author.Handle
	}
	if view.Record != nil {
		if record, ok := view.Record.Val.(*bsky.FeedPost); ok {
			post.Text = record.Text
		}
	}
	post.ImageURLs = imageURLs(view.Embed)
	return post
}

// imageURLs returns the full-size image URLs of a plain image embed or of the media half of a quote with media.
func imageURLs(embed *bsky.FeedDefs_PostView_Embed) []string {
	if embed == nil {
		return nil
	}
	images := embed.EmbedImages_View
	if media := embed.EmbedRecordWithMedia_View; media != nil && media.Media != nil {
		images = media.Media.EmbedImages_View
	}
	if images == nil {
		return nil
	}

	urls := make([]string, 0, len(images.Images))
	for _, img := range images.Images {
		if img != nil && img.Fullsize != "" {
			urls = append(urls, img.Fullsize)
		}
	}
	return urls
}

// classifyXRPC maps the AppView's not-found answers to ErrPostUnavailable.
func classifyXRPC(err error) error {
	var xerr *xrpc.Error
	if !errors.As(err, &xerr) {
		return err
	}
	if xerr.StatusCode == http.StatusNotFound {
		return ErrPostUnavailable
	}
	if wrapped, ok := xerr.Wrapped.(*xrpc.XRPCError); ok && wrapped.ErrStr == "NotFound" {
		return ErrPostUnavailable
	}
	return err
}

var _ ports.Tool = (*BlueskyFetchTool)(nil)
