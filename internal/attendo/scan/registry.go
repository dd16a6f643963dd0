package scan

import (
	"context"
	"sync"
)

// CameraRegistry tracks the cameras reported by the last enumeration and
// the default camera for new sessions.
type CameraRegistry struct {
	mu        sync.RWMutex
	enum      Enumerator
	cameras   []CameraDescriptor
	defaultID string
}

func NewCameraRegistry(enum Enumerator) *CameraRegistry {
	return &CameraRegistry{enum: enum}
}

// Refresh re-enumerates cameras. On failure the previous list is kept.
func (r *CameraRegistry) Refresh(ctx context.Context) ([]CameraDescriptor, error) {
	cams, err := r.enum.Enumerate(ctx)
	if err != nil {
		return nil, &DeviceError{Op: "enumerate", Kind: ErrEnumerationFailed, Err: err}
	}

	list := make([]CameraDescriptor, len(cams))
	copy(list, cams)

	r.mu.Lock()
	defer r.mu.Unlock()

	wasEmpty := len(r.cameras) == 0
	r.cameras = list
	if len(list) == 0 {
		r.defaultID = ""
	} else if wasEmpty || indexOf(list, r.defaultID) < 0 {
		r.defaultID = list[0].ID
	}

	out := make([]CameraDescriptor, len(list))
	copy(out, list)
	return out, nil
}

// Cameras returns the cameras in enumeration order.
func (r *CameraRegistry) Cameras() []CameraDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CameraDescriptor, len(r.cameras))
	copy(out, r.cameras)
	return out
}

func (r *CameraRegistry) Default() (CameraDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.cameras, r.defaultID); i >= 0 {
		return r.cameras[i], nil
	}
	return CameraDescriptor{}, &DeviceError{Op: "select", Kind: ErrNoCameras}
}

func (r *CameraRegistry) Lookup(id string) (CameraDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.cameras, id); i >= 0 {
		return r.cameras[i], true
	}
	return CameraDescriptor{}, false
}

// Next returns the camera after current, wrapping around. An unknown
// current yields the first camera.
func (r *CameraRegistry) Next(current string) (CameraDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.cameras)
	if n == 0 {
		return CameraDescriptor{}, &DeviceError{Op: "switch", CameraID: current, Kind: ErrNoCameras}
	}
	i := indexOf(r.cameras, current)
	return r.cameras[(i+1)%n], nil
}

func indexOf(cams []CameraDescriptor, id string) int {
	if id == "" {
		return -1
	}
	for i, c := range cams {
		if c.ID == id {
			return i
		}
	}
	return -1
}
