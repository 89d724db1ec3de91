//go:build windows

package wasapi

import (
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"

	"github.com/tabmix/mixer/internal/audio"
)

// COM objects implemented in Go. The OS holds raw pointers to them, so
// every live object is kept reachable through the registry until its
// reference count drops to zero.

type eventsVtbl struct {
	QueryInterface         uintptr
	AddRef                 uintptr
	Release                uintptr
	OnDisplayNameChanged   uintptr
	OnIconPathChanged      uintptr
	OnSimpleVolumeChanged  uintptr
	OnChannelVolumeChanged uintptr
	OnGroupingParamChanged uintptr
	OnStateChanged         uintptr
	OnSessionDisconnected  uintptr
}

type notificationVtbl struct {
	QueryInterface   uintptr
	AddRef           uintptr
	Release          uintptr
	OnSessionCreated uintptr
}

// eventsObject implements IAudioSessionEvents. vtbl must stay the first
// field.
type eventsObject struct {
	vtbl   *eventsVtbl
	refs   int32
	events audio.SessionEvents
	vol    *ole.IUnknown
}

// notificationObject implements IAudioSessionNotification.
type notificationObject struct {
	vtbl  *notificationVtbl
	refs  int32
	notif audio.SessionNotification
}

var (
	vtblOnce        sync.Once
	eventsVtable    *eventsVtbl
	notifyVtable    *notificationVtbl
	registryMu      sync.Mutex
	eventsObjects   = map[uintptr]*eventsObject{}
	notifierObjects = map[uintptr]*notificationObject{}
)

func initVtables() {
	vtblOnce.Do(func() {
		eventsVtable = &eventsVtbl{
			QueryInterface:         syscall.NewCallback(eventsQueryInterface),
			AddRef:                 syscall.NewCallback(eventsAddRef),
			Release:                syscall.NewCallback(eventsRelease),
			OnDisplayNameChanged:   syscall.NewCallback(ignore3),
			OnIconPathChanged:      syscall.NewCallback(ignore3),
			OnSimpleVolumeChanged:  syscall.NewCallback(eventsOnSimpleVolumeChanged),
			OnChannelVolumeChanged: syscall.NewCallback(ignore5),
			OnGroupingParamChanged: syscall.NewCallback(ignore3),
			OnStateChanged:         syscall.NewCallback(eventsOnStateChanged),
			OnSessionDisconnected:  syscall.NewCallback(eventsOnSessionDisconnected),
		}
		notifyVtable = &notificationVtbl{
			QueryInterface:   syscall.NewCallback(notifyQueryInterface),
			AddRef:           syscall.NewCallback(notifyAddRef),
			Release:          syscall.NewCallback(notifyRelease),
			OnSessionCreated: syscall.NewCallback(notifyOnSessionCreated),
		}
	})
}

func newEventsObject(events audio.SessionEvents, vol *ole.IUnknown) *eventsObject {
	initVtables()
	if vol != nil {
		vol.AddRef()
	}
	obj := &eventsObject{vtbl: eventsVtable, refs: 1, events: events, vol: vol}
	registryMu.Lock()
	eventsObjects[obj.ptr()] = obj
	registryMu.Unlock()
	return obj
}

func (o *eventsObject) ptr() uintptr { return uintptr(unsafe.Pointer(o)) }

func (o *eventsObject) release() { eventsRelease(o.ptr()) }

func lookupEvents(this uintptr) *eventsObject {
	registryMu.Lock()
	defer registryMu.Unlock()
	return eventsObjects[this]
}

func newNotificationObject(n audio.SessionNotification) *notificationObject {
	initVtables()
	obj := &notificationObject{vtbl: notifyVtable, refs: 1, notif: n}
	registryMu.Lock()
	notifierObjects[obj.ptr()] = obj
	registryMu.Unlock()
	return obj
}

func (o *notificationObject) ptr() uintptr { return uintptr(unsafe.Pointer(o)) }

func (o *notificationObject) release() { notifyRelease(o.ptr()) }

func lookupNotifier(this uintptr) *notificationObject {
	registryMu.Lock()
	defer registryMu.Unlock()
	return notifierObjects[this]
}

func queryInterfaceFor(this, riid, ppv uintptr, iid *ole.GUID, addRef func(uintptr) uintptr) uintptr {
	if ppv == 0 {
		return ole.E_POINTER
	}
	want := (*ole.GUID)(unsafe.Pointer(riid))
	if ole.IsEqualGUID(want, ole.IID_IUnknown) || ole.IsEqualGUID(want, iid) {
		*(*uintptr)(unsafe.Pointer(ppv)) = this
		addRef(this)
		return ole.S_OK
	}
	*(*uintptr)(unsafe.Pointer(ppv)) = 0
	return ole.E_NOINTERFACE
}

func eventsQueryInterface(this, riid, ppv uintptr) uintptr {
	return queryInterfaceFor(this, riid, ppv, iidIAudioSessionEvents, eventsAddRef)
}

func eventsAddRef(this uintptr) uintptr {
	obj := lookupEvents(this)
	if obj == nil {
		return 0
	}
	return uintptr(atomic.AddInt32(&obj.refs, 1))
}

func eventsRelease(this uintptr) uintptr {
	obj := lookupEvents(this)
	if obj == nil {
		return 0
	}
	n := atomic.AddInt32(&obj.refs, -1)
	if n == 0 {
		registryMu.Lock()
		delete(eventsObjects, this)
		registryMu.Unlock()
		if obj.vol != nil {
			obj.vol.Release()
		}
	}
	return uintptr(n)
}

// eventsOnSimpleVolumeChanged receives (this, float level, BOOL mute,
// context). The float travels in an XMM register that callbacks cannot
// read, so the level is read back from the session.
func eventsOnSimpleVolumeChanged(this, _, mute, _ uintptr) uintptr {
	obj := lookupEvents(this)
	if obj == nil {
		return ole.S_OK
	}
	var level float32
	if obj.vol != nil {
		level, _ = simpleVolume{obj.vol}.MasterVolume()
	}
	obj.events.OnSimpleVolumeChanged(level, int32(mute) != 0)
	return ole.S_OK
}

func eventsOnStateChanged(this, state uintptr) uintptr {
	if obj := lookupEvents(this); obj != nil {
		obj.events.OnStateChanged(audio.SessionState(int32(state)))
	}
	return ole.S_OK
}

func eventsOnSessionDisconnected(this, reason uintptr) uintptr {
	if obj := lookupEvents(this); obj != nil {
		obj.events.OnSessionDisconnected(audio.DisconnectReason(int32(reason)))
	}
	return ole.S_OK
}

func ignore3(_, _, _ uintptr) uintptr { return ole.S_OK }

func ignore5(_, _, _, _, _ uintptr) uintptr { return ole.S_OK }

func notifyQueryInterface(this, riid, ppv uintptr) uintptr {
	return queryInterfaceFor(this, riid, ppv, iidIAudioSessionNotification, notifyAddRef)
}

func notifyAddRef(this uintptr) uintptr {
	obj := lookupNotifier(this)
	if obj == nil {
		return 0
	}
	return uintptr(atomic.AddInt32(&obj.refs, 1))
}

func notifyRelease(this uintptr) uintptr {
	obj := lookupNotifier(this)
	if obj == nil {
		return 0
	}
	n := atomic.AddInt32(&obj.refs, -1)
	if n == 0 {
		registryMu.Lock()
		delete(notifierObjects, this)
		registryMu.Unlock()
	}
	return uintptr(n)
}

// notifyOnSessionCreated hands a new session to the notifier. The OS
// releases its own reference when the callback returns, so one is taken
// here on behalf of the receiver.
func notifyOnSessionCreated(this, newSession uintptr) uintptr {
	obj := lookupNotifier(this)
	if obj == nil || newSession == 0 {
		return ole.S_OK
	}
	ctl := (*ole.IUnknown)(unsafe.Pointer(newSession))
	ctl.AddRef()
	obj.notif.OnSessionCreated(&control{ctl: ctl})
	return ole.S_OK
}
