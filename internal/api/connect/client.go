package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client is a PlayerService client.
type Client struct {
	setQueue      *connect.Client[SetQueueRequest, Status]
	enqueue       *connect.Client[EnqueueRequest, EnqueueResponse]
	enqueueAlbum  *connect.Client[EnqueueAlbumRequest, EnqueueAlbumResponse]
	search        *connect.Client[SearchRequest, SearchResponse]
	playAt        *connect.Client[PlayAtRequest, Applied]
	next          *connect.Client[Empty, Applied]
	previous      *connect.Client[Empty, Applied]
	pause         *connect.Client[Empty, Applied]
	resume        *connect.Client[Empty, Applied]
	stop          *connect.Client[Empty, Applied]
	seek          *connect.Client[SeekRequest, Applied]
	clear         *connect.Client[Empty, Status]
	updateContent *connect.Client[UpdateContentRequest, Applied]
	prefetch      *connect.Client[Empty, PrefetchResponse]
	getStatus     *connect.Client[Empty, Status]
	history       *connect.Client[HistoryRequest, HistoryResponse]
	subscribe     *connect.Client[Empty, Status]
}

// NewClient creates a client for the server at baseURL.
// A non-empty token is sent with every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewTokenInjector(token)))
	}

	return &Client{
		setQueue:      connect.NewClient[SetQueueRequest, Status](httpClient, baseURL+SetQueueProcedure, opts...),
		enqueue:       connect.NewClient[EnqueueRequest, EnqueueResponse](httpClient, baseURL+EnqueueProcedure, opts...),
		enqueueAlbum:  connect.NewClient[EnqueueAlbumRequest, EnqueueAlbumResponse](httpClient, baseURL+EnqueueAlbumProcedure, opts...),
		search:        connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+SearchProcedure, opts...),
		playAt:        connect.NewClient[PlayAtRequest, Applied](httpClient, baseURL+PlayAtProcedure, opts...),
		next:          connect.NewClient[Empty, Applied](httpClient, baseURL+NextProcedure, opts...),
		previous:      connect.NewClient[Empty, Applied](httpClient, baseURL+PreviousProcedure, opts...),
		pause:         connect.NewClient[Empty, Applied](httpClient, baseURL+PauseProcedure, opts...),
		resume:        connect.NewClient[Empty, Applied](httpClient, baseURL+ResumeProcedure, opts...),
		stop:          connect.NewClient[Empty, Applied](httpClient, baseURL+StopProcedure, opts...),
		seek:          connect.NewClient[SeekRequest, Applied](httpClient, baseURL+SeekProcedure, opts...),
		clear:         connect.NewClient[Empty, Status](httpClient, baseURL+ClearProcedure, opts...),
		updateContent: connect.NewClient[UpdateContentRequest, Applied](httpClient, baseURL+UpdateContentProcedure, opts...),
		prefetch:      connect.NewClient[Empty, PrefetchResponse](httpClient, baseURL+PrefetchProcedure, opts...),
		getStatus:     connect.NewClient[Empty, Status](httpClient, baseURL+GetStatusProcedure, opts...),
		history:       connect.NewClient[HistoryRequest, HistoryResponse](httpClient, baseURL+HistoryProcedure, opts...),
		subscribe:     connect.NewClient[Empty, Status](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) SetQueue(ctx context.Context, req *SetQueueRequest) (*Status, error) {
	return call(ctx, c.setQueue, req)
}

func (c *Client) Enqueue(ctx context.Context, item Item) (*EnqueueResponse, error) {
	return call(ctx, c.enqueue, &EnqueueRequest{Item: item})
}

// EnqueueTrack appends a catalog track by ID or URL.
func (c *Client) EnqueueTrack(ctx context.Context, trackID string) (*EnqueueResponse, error) {
	return call(ctx, c.enqueue, &EnqueueRequest{TrackID: trackID})
}

func (c *Client) EnqueueAlbum(ctx context.Context, req *EnqueueAlbumRequest) (*EnqueueAlbumResponse, error) {
	return call(ctx, c.enqueueAlbum, req)
}

func (c *Client) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	return call(ctx, c.search, &SearchRequest{Query: query, Limit: limit})
}

func (c *Client) PlayAt(ctx context.Context, index int) (*Applied, error) {
	return call(ctx, c.playAt, &PlayAtRequest{Index: index})
}

func (c *Client) Next(ctx context.Context) (*Applied, error) {
	return call(ctx, c.next, &Empty{})
}

func (c *Client) Previous(ctx context.Context) (*Applied, error) {
	return call(ctx, c.previous, &Empty{})
}

func (c *Client) Pause(ctx context.Context) (*Applied, error) {
	return call(ctx, c.pause, &Empty{})
}

func (c *Client) Resume(ctx context.Context) (*Applied, error) {
	return call(ctx, c.resume, &Empty{})
}

func (c *Client) Stop(ctx context.Context) (*Applied, error) {
	return call(ctx, c.stop, &Empty{})
}

func (c *Client) Seek(ctx context.Context, positionMs int) (*Applied, error) {
	return call(ctx, c.seek, &SeekRequest{PositionMs: positionMs})
}

func (c *Client) Clear(ctx context.Context) (*Status, error) {
	return call(ctx, c.clear, &Empty{})
}

func (c *Client) UpdateContent(ctx context.Context, req *UpdateContentRequest) (*Applied, error) {
	return call(ctx, c.updateContent, req)
}

func (c *Client) Prefetch(ctx context.Context) (*PrefetchResponse, error) {
	return call(ctx, c.prefetch, &Empty{})
}

func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	return call(ctx, c.getStatus, &Empty{})
}

func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	return call(ctx, c.history, &HistoryRequest{Limit: limit})
}

// Subscribe calls fn for every status update until ctx is done, fn returns
// an error, or the server closes the stream.
func (c *Client) Subscribe(ctx context.Context, fn func(*Status) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}
