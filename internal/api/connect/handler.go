package connect

import (
	"net/http"

	"connectrpc.com/connect"
)

// PlayerServiceName is the fully-qualified name of the PlayerService.
const PlayerServiceName = "trakify.v1.PlayerService"

// Procedure paths of the PlayerService.
const (
	SetQueueProcedure      = "/" + PlayerServiceName + "/SetQueue"
	EnqueueProcedure       = "/" + PlayerServiceName + "/Enqueue"
	EnqueueAlbumProcedure  = "/" + PlayerServiceName + "/EnqueueAlbum"
	SearchProcedure        = "/" + PlayerServiceName + "/Search"
	PlayAtProcedure        = "/" + PlayerServiceName + "/PlayAt"
	NextProcedure          = "/" + PlayerServiceName + "/Next"
	PreviousProcedure      = "/" + PlayerServiceName + "/Previous"
	PauseProcedure         = "/" + PlayerServiceName + "/Pause"
	ResumeProcedure        = "/" + PlayerServiceName + "/Resume"
	StopProcedure          = "/" + PlayerServiceName + "/Stop"
	SeekProcedure          = "/" + PlayerServiceName + "/Seek"
	ClearProcedure         = "/" + PlayerServiceName + "/Clear"
	UpdateContentProcedure = "/" + PlayerServiceName + "/UpdateContent"
	PrefetchProcedure      = "/" + PlayerServiceName + "/Prefetch"
	GetStatusProcedure     = "/" + PlayerServiceName + "/GetStatus"
	HistoryProcedure       = "/" + PlayerServiceName + "/History"
	SubscribeProcedure     = "/" + PlayerServiceName + "/Subscribe"
)

// NewPlayerServiceHandler builds an HTTP handler serving every procedure of
// svc. It returns the path prefix to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(SetQueueProcedure, connect.NewUnaryHandler(SetQueueProcedure, svc.SetQueue, opts...))
	mux.Handle(EnqueueProcedure, connect.NewUnaryHandler(EnqueueProcedure, svc.Enqueue, opts...))
	mux.Handle(EnqueueAlbumProcedure, connect.NewUnaryHandler(EnqueueAlbumProcedure, svc.EnqueueAlbum, opts...))
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, svc.Search, opts...))
	mux.Handle(PlayAtProcedure, connect.NewUnaryHandler(PlayAtProcedure, svc.PlayAt, opts...))
	mux.Handle(NextProcedure, connect.NewUnaryHandler(NextProcedure, svc.Next, opts...))
	mux.Handle(PreviousProcedure, connect.NewUnaryHandler(PreviousProcedure, svc.Previous, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, svc.Seek, opts...))
	mux.Handle(ClearProcedure, connect.NewUnaryHandler(ClearProcedure, svc.Clear, opts...))
	mux.Handle(UpdateContentProcedure, connect.NewUnaryHandler(UpdateContentProcedure, svc.UpdateContent, opts...))
	mux.Handle(PrefetchProcedure, connect.NewUnaryHandler(PrefetchProcedure, svc.Prefetch, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(HistoryProcedure, connect.NewUnaryHandler(HistoryProcedure, svc.History, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))

	return "/" + PlayerServiceName + "/", mux
}
