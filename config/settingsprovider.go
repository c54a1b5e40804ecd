package config

type SettingsProvider[T any] interface {
	// GetSettings returns the current settings of type T.
	GetSettings() T
}

// StaticProvider always returns the same settings value.
type StaticProvider[T any] struct {
	Settings T
}

func (p StaticProvider[T]) GetSettings() T {
	return p.Settings
}

// mappedProvider derives settings of type T from a source provider on every call,
// so changes in the source are picked up immediately.
type mappedProvider[S, T any] struct {
	source SettingsProvider[S]
	mapFn  func(S) T
}

func (p *mappedProvider[S, T]) GetSettings() T {
	return p.mapFn(p.source.GetSettings())
}

// Map returns a provider that projects the settings of source through mapFn.
func Map[S, T any](source SettingsProvider[S], mapFn func(S) T) SettingsProvider[T] {
	return &mappedProvider[S, T]{source: source, mapFn: mapFn}
}
