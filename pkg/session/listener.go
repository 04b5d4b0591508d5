package session

import (
	"pollenmap/pkg/forecast"
)

// Listener receives session notifications. Calls arrive in order on a
// single goroutine and never while the session lock is held, so a listener
// may call back into the session.
type Listener interface {
	OnManifestReady(m *forecast.Manifest)
	OnAreaListReady(interval int, areas forecast.AreaList)
	OnFetchFailed(kind forecast.Kind, err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	ManifestReady func(m *forecast.Manifest)
	AreaListReady func(interval int, areas forecast.AreaList)
	FetchFailed   func(kind forecast.Kind, err error)
}

func (f ListenerFuncs) OnManifestReady(m *forecast.Manifest) {
	if f.ManifestReady != nil {
		f.ManifestReady(m)
	}
}

func (f ListenerFuncs) OnAreaListReady(interval int, areas forecast.AreaList) {
	if f.AreaListReady != nil {
		f.AreaListReady(interval, areas)
	}
}

func (f ListenerFuncs) OnFetchFailed(kind forecast.Kind, err error) {
	if f.FetchFailed != nil {
		f.FetchFailed(kind, err)
	}
}

type eventType int

const (
	eventManifest eventType = iota
	eventAreas
	eventFailed
)

type event struct {
	typ      eventType
	manifest *forecast.Manifest
	interval int
	areas    forecast.AreaList
	kind     forecast.Kind
	err      error
}

func (e *event) deliver(l Listener) {
	switch e.typ {
	case eventManifest:
		l.OnManifestReady(e.manifest)
	case eventAreas:
		l.OnAreaListReady(e.interval, e.areas)
	case eventFailed:
		l.OnFetchFailed(e.kind, e.err)
	}
}
