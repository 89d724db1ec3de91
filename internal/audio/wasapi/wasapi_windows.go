//go:build windows

// Package wasapi binds the audio session capability surface to the Windows
// Audio Session API through COM.
package wasapi

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/tabmix/mixer/internal/audio"
)

var (
	clsidMMDeviceEnumerator      = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator       = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioSessionManager2     = ole.NewGUID("{77AA99A0-1BD6-484F-8BC7-2C654C9A9B6F}")
	iidIAudioSessionControl2     = ole.NewGUID("{BFB7FF88-7239-4FC9-8FA2-07C950BE9C6D}")
	iidISimpleAudioVolume        = ole.NewGUID("{87CE5498-68D6-44E5-9215-6DA47EF883D8}")
	iidIAudioSessionEvents       = ole.NewGUID("{24918ACC-64B3-37C1-8CA9-74A66E9957A8}")
	iidIAudioSessionNotification = ole.NewGUID("{641DD20B-4D41-49CC-ABA3-174B9477BB08}")
)

// vtable slots
const (
	mQueryInterface = 0

	mEnumeratorGetDefaultAudioEndpoint = 4
	mDeviceActivate                    = 3

	mManagerGetSessionEnumerator   = 5
	mManagerRegisterNotification   = 6
	mManagerUnregisterNotification = 7

	mSessionsGetCount   = 3
	mSessionsGetSession = 4

	mControlGetState         = 3
	mControlGetDisplayName   = 4
	mControlRegisterEvents   = 10
	mControlUnregisterEvents = 11
	mControl2GetInstanceID   = 13
	mControl2GetProcessID    = 14

	mVolumeSetMasterVolume = 3
	mVolumeGetMasterVolume = 4
	mVolumeSetMute         = 5
	mVolumeGetMute         = 6
)

const (
	eRender  = 0
	eConsole = 0
)

var errNotRegistered = errors.New("wasapi: registration already undone")

// Subsystem opens sessions on the default render device.
type Subsystem struct{}

func New() *Subsystem { return &Subsystem{} }

// Open initialises COM on the calling thread and pins the calling goroutine
// to it. The returned manager must be closed from the same goroutine.
func (s *Subsystem) Open() (audio.SessionManager, error) {
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		// S_FALSE: already initialised on this thread, still needs a matching uninit
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			runtime.UnlockOSThread()
			return nil, fmt.Errorf("wasapi: CoInitializeEx: %w", err)
		}
	}
	mgr, err := openManager()
	if err != nil {
		ole.CoUninitialize()
		runtime.UnlockOSThread()
		return nil, err
	}
	return mgr, nil
}

func openManager() (*manager, error) {
	en, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return nil, fmt.Errorf("wasapi: create device enumerator: %w", err)
	}
	defer en.Release()

	var device *ole.IUnknown
	if err := check(call(en, mEnumeratorGetDefaultAudioEndpoint, eRender, eConsole, uintptr(unsafe.Pointer(&device)))); err != nil {
		return nil, fmt.Errorf("wasapi: default audio endpoint: %w", err)
	}
	defer device.Release()

	var sm *ole.IUnknown
	if err := check(call(device, mDeviceActivate,
		uintptr(unsafe.Pointer(iidIAudioSessionManager2)),
		ole.CLSCTX_ALL,
		0,
		uintptr(unsafe.Pointer(&sm)))); err != nil {
		return nil, fmt.Errorf("wasapi: activate session manager: %w", err)
	}
	return &manager{sm: sm}, nil
}

type manager struct {
	sm *ole.IUnknown
}

func (m *manager) Enumerate() (audio.SessionEnumerator, error) {
	var en *ole.IUnknown
	if err := check(call(m.sm, mManagerGetSessionEnumerator, uintptr(unsafe.Pointer(&en)))); err != nil {
		return nil, fmt.Errorf("wasapi: session enumerator: %w", err)
	}
	return &enumerator{en: en}, nil
}

func (m *manager) RegisterNotification(n audio.SessionNotification) (audio.Registration, error) {
	obj := newNotificationObject(n)
	if err := check(call(m.sm, mManagerRegisterNotification, obj.ptr())); err != nil {
		obj.release()
		return nil, fmt.Errorf("wasapi: register session notification: %w", err)
	}
	m.sm.AddRef()
	sm := m.sm
	return &registration{undo: func() error {
		defer sm.Release()
		defer obj.release()
		return check(call(sm, mManagerUnregisterNotification, obj.ptr()))
	}}, nil
}

func (m *manager) Close() error {
	m.sm.Release()
	ole.CoUninitialize()
	runtime.UnlockOSThread()
	return nil
}

type enumerator struct {
	en *ole.IUnknown
}

func (e *enumerator) Count() (int, error) {
	var n int32
	if err := check(call(e.en, mSessionsGetCount, uintptr(unsafe.Pointer(&n)))); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (e *enumerator) Session(i int) (audio.SessionControl, error) {
	var ctl *ole.IUnknown
	if err := check(call(e.en, mSessionsGetSession, uintptr(i), uintptr(unsafe.Pointer(&ctl)))); err != nil {
		return nil, err
	}
	return &control{ctl: ctl}, nil
}

func (e *enumerator) Release() { e.en.Release() }

// control wraps IAudioSessionControl. The secondary interfaces are looked
// up on first use and released with the control.
type control struct {
	ctl  *ole.IUnknown
	ctl2 *ole.IUnknown
	vol  *ole.IUnknown
}

func (c *control) State() (audio.SessionState, error) {
	var st int32
	if err := check(call(c.ctl, mControlGetState, uintptr(unsafe.Pointer(&st)))); err != nil {
		return 0, err
	}
	return audio.SessionState(st), nil
}

func (c *control) Register(events audio.SessionEvents) (audio.Registration, error) {
	vol, _ := c.simpleVolume()
	obj := newEventsObject(events, vol)
	if err := check(call(c.ctl, mControlRegisterEvents, obj.ptr())); err != nil {
		obj.release()
		return nil, err
	}
	c.ctl.AddRef()
	ctl := c.ctl
	return &registration{undo: func() error {
		defer ctl.Release()
		defer obj.release()
		return check(call(ctl, mControlUnregisterEvents, obj.ptr()))
	}}, nil
}

func (c *control) simpleVolume() (*ole.IUnknown, bool) {
	if c.vol == nil {
		vol, err := queryInterface(c.ctl, iidISimpleAudioVolume)
		if err != nil {
			return nil, false
		}
		c.vol = vol
	}
	return c.vol, true
}

func (c *control) Volume() (audio.SimpleVolume, bool) {
	vol, ok := c.simpleVolume()
	if !ok {
		return nil, false
	}
	return simpleVolume{vol}, true
}

func (c *control) Identity() (audio.SessionIdentity, bool) {
	if c.ctl2 == nil {
		ctl2, err := queryInterface(c.ctl, iidIAudioSessionControl2)
		if err != nil {
			return nil, false
		}
		c.ctl2 = ctl2
	}
	return identity{c.ctl2}, true
}

func (c *control) Release() {
	for _, p := range []*ole.IUnknown{c.vol, c.ctl2, c.ctl} {
		if p != nil {
			p.Release()
		}
	}
	c.vol, c.ctl2, c.ctl = nil, nil, nil
}

type simpleVolume struct{ p *ole.IUnknown }

func (v simpleVolume) MasterVolume() (float32, error) {
	var level float32
	if err := check(call(v.p, mVolumeGetMasterVolume, uintptr(unsafe.Pointer(&level)))); err != nil {
		return 0, err
	}
	return level, nil
}

func (v simpleVolume) SetMasterVolume(level float32) error {
	return check(call(v.p, mVolumeSetMasterVolume, uintptr(math.Float32bits(level)), 0))
}

func (v simpleVolume) Mute() (bool, error) {
	var muted int32
	if err := check(call(v.p, mVolumeGetMute, uintptr(unsafe.Pointer(&muted)))); err != nil {
		return false, err
	}
	return muted != 0, nil
}

func (v simpleVolume) SetMute(mute bool) error {
	var b uintptr
	if mute {
		b = 1
	}
	return check(call(v.p, mVolumeSetMute, b, 0))
}

type identity struct{ p *ole.IUnknown }

func (i identity) ProcessID() (uint32, error) {
	var pid uint32
	if err := check(call(i.p, mControl2GetProcessID, uintptr(unsafe.Pointer(&pid)))); err != nil {
		return 0, err
	}
	return pid, nil
}

func (i identity) InstanceID() (string, error) {
	return i.str(mControl2GetInstanceID)
}

func (i identity) DisplayName() (string, error) {
	return i.str(mControlGetDisplayName)
}

func (i identity) str(method uintptr) (string, error) {
	var p *uint16
	if err := check(call(i.p, method, uintptr(unsafe.Pointer(&p)))); err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}
	defer windows.CoTaskMemFree(unsafe.Pointer(p))
	return windows.UTF16PtrToString(p), nil
}

type registration struct {
	undo func() error
	done bool
}

func (r *registration) Unregister() error {
	if r.done {
		return errNotRegistered
	}
	r.done = true
	return r.undo()
}

// call invokes vtable slot method on obj.
func call(obj *ole.IUnknown, method uintptr, args ...uintptr) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	fn := *(*uintptr)(unsafe.Pointer(vtbl + method*unsafe.Sizeof(uintptr(0))))
	r, _, _ := syscall.SyscallN(fn, append([]uintptr{uintptr(unsafe.Pointer(obj))}, args...)...)
	return r
}

func queryInterface(obj *ole.IUnknown, iid *ole.GUID) (*ole.IUnknown, error) {
	var out *ole.IUnknown
	if err := check(call(obj, mQueryInterface, uintptr(unsafe.Pointer(iid)), uintptr(unsafe.Pointer(&out)))); err != nil {
		return nil, err
	}
	return out, nil
}

func check(hr uintptr) error {
	if int32(hr) < 0 {
		return ole.NewError(hr)
	}
	return nil
}
