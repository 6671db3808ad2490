package store

import (
	"fmt"
	"sync"
)

// PlayerSettings holds the persisted video player volume state.
type PlayerSettings struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

type preferencesDoc struct {
	Player      PlayerSettings  `json:"player"`
	Compression map[Origin]bool `json:"compression"`
}

// Preferences is the small user-preferences document: player volume/mute
// plus the per-origin compression toggles consulted at job submission.
// Like the other documents it is wholesale-rewritten on every mutation.
type Preferences struct {
	mu       sync.RWMutex
	filePath string
	data     preferencesDoc
}

// OpenPreferences loads the preferences document at path, seeding defaults
// when the file does not exist yet.
func OpenPreferences(path string) (*Preferences, error) {
	doc, err := OpenDocument[preferencesDoc](path)
	if err != nil {
		return nil, err
	}
	p := &Preferences{filePath: path}
	if d, ok := doc.Get("preferences"); ok {
		p.data = d
	} else {
		p.data = preferencesDoc{
			Player:      PlayerSettings{Volume: 1.0},
			Compression: map[Origin]bool{},
		}
	}
	if p.data.Compression == nil {
		p.data.Compression = map[Origin]bool{}
	}
	return p, nil
}

// Player returns the current player settings.
func (p *Preferences) Player() PlayerSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Player
}

// SetPlayer stores player volume and mute state. Volume must be within
// [0, 1].
func (p *Preferences) SetPlayer(volume float64, muted bool) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume out of range: %v", volume)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Player = PlayerSettings{Volume: volume, Muted: muted}
	return p.persist()
}

// CompressionEnabled reports whether downloads of the given origin should
// also produce a compressed rendition.
func (p *Preferences) CompressionEnabled(origin Origin) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Compression[origin]
}

// SetCompression toggles compression for one origin.
func (p *Preferences) SetCompression(origin Origin, enabled bool) error {
	switch origin {
	case OriginStream, OriginFull, OriginTrim, OriginUpload:
	default:
		return fmt.Errorf("unknown origin: %q", origin)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Compression[origin] = enabled
	return p.persist()
}

func (p *Preferences) persist() error {
	return writeAtomic(p.filePath, map[string]preferencesDoc{"preferences": p.data})
}
