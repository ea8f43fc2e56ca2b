package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Key Source - Linux input devices
// ============================================================================
// Key events are read from evdev character devices with a single epoll
// goroutine. The source tracks modifier state itself (evdev reports raw key
// transitions, not a modifier mask) and emits KeyPress events for presses
// and auto-repeats of non-modifier keys.
//
// Keycodes are not stable identifiers across devices: when the device set
// changes the source emits KeyboardRemapped so the dispatch loop can
// release and re-acquire its grabs. When the last device disappears, or on
// Close, the source emits KeySourceClosed and stops.
// ============================================================================

// GrabSpec is one key the dispatch loop wants delivered.
type GrabSpec struct {
	Name string
	Code uint16
	Mods ModMask
}

// GrabError reports a failed grab together with the key and device it
// failed for, so the operator gets a specific diagnostic instead of a
// generic ioctl error.
type GrabError struct {
	Key    string
	Device string
	Err    error
}

func (e *GrabError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("key %q: not supported by any input device", e.Key)
	}
	return fmt.Sprintf("%s: grab failed: %v (is another process holding the device?)", e.Device, e.Err)
}

func (e *GrabError) Unwrap() error { return e.Err }

// KeySource is the dispatch loop's view of the key-event collaborator.
type KeySource interface {
	Grab(specs []GrabSpec) error
	UngrabAll()
	Events() <-chan KeyEvent
	Close() error
}

// inputEvent mirrors struct input_event from <linux/input.h>:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

type evdevSource struct {
	logger    *slog.Logger
	exclusive bool
	paths     []string // configured device paths, reopened after hotplug

	mu    sync.Mutex
	files map[string]*os.File

	events chan KeyEvent
	wakeR  *os.File
	wakeW  *os.File

	closeOnce sync.Once
}

// newEvdevSource opens the given input devices and starts the reader.
// Failing to open any configured device is a fatal environment error.
func newEvdevSource(paths []string, exclusive bool, logger *slog.Logger) (*evdevSource, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input devices configured")
	}

	files := make(map[string]*os.File, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return nil, fmt.Errorf("open input device %s: %w (run as root or join the 'input' group)", p, err)
		}
		files[p] = f
	}

	wakeR, wakeW, err := os.Pipe()
	if err != nil {
		for _, f := range files {
			f.Close()
		}
		return nil, fmt.Errorf("wake pipe: %w", err)
	}

	s := &evdevSource{
		logger:    logger,
		exclusive: exclusive,
		paths:     paths,
		files:     files,
		events:    make(chan KeyEvent, 64),
		wakeR:     wakeR,
		wakeW:     wakeW,
	}
	go s.run()
	return s, nil
}

// Events returns the key event channel.
func (s *evdevSource) Events() <-chan KeyEvent {
	return s.events
}

// Grab registers the keys the dispatch loop wants. Every key must be
// backed by at least one device; with exclusive mode enabled the devices
// are also grabbed via EVIOCGRAB, so no other client sees their events.
func (s *evdevSource) Grab(specs []GrabSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bitmaps := make(map[string][]byte, len(s.files))
	for path, f := range s.files {
		bits, err := readKeyBits(f)
		if err != nil {
			s.logger.Warn("cannot read key capabilities", "device", path, "error", err)
			continue
		}
		bitmaps[path] = bits
	}

	for _, spec := range specs {
		supported := false
		for _, bits := range bitmaps {
			if hasKeyBit(bits, spec.Code) {
				supported = true
				break
			}
		}
		if !supported {
			return &GrabError{Key: spec.Name}
		}
	}

	if s.exclusive {
		for path, f := range s.files {
			if err := unix.IoctlSetInt(int(f.Fd()), eviocgrab, 1); err != nil {
				return &GrabError{Key: "", Device: path, Err: err}
			}
		}
	}
	return nil
}

// UngrabAll releases exclusive grabs. Errors are ignored: a vanished
// device has released its grab already.
func (s *evdevSource) UngrabAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exclusive {
		return
	}
	for _, f := range s.files {
		_ = unix.IoctlSetInt(int(f.Fd()), eviocgrab, 0)
	}
}

// Close stops the reader; KeySourceClosed is delivered on the event
// channel before it is closed.
func (s *evdevSource) Close() error {
	s.closeOnce.Do(func() {
		s.wakeW.Write([]byte{0})
	})
	return nil
}

// run is the epoll loop. One goroutine serves all devices.
func (s *evdevSource) run() {
	defer s.teardown()

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		s.events <- KeySourceClosed{Err: fmt.Errorf("epoll_create1: %w", err)}
		close(s.events)
		return
	}
	defer unix.Close(epfd)

	fdToPath := make(map[int]string)
	register := func(path string, f *os.File) error {
		fd := int(f.Fd())
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return err
		}
		fdToPath[fd] = path
		return nil
	}

	s.mu.Lock()
	for path, f := range s.files {
		if err := register(path, f); err != nil {
			s.mu.Unlock()
			s.events <- KeySourceClosed{Err: fmt.Errorf("epoll_ctl_add %s: %w", path, err)}
			close(s.events)
			return
		}
	}
	s.mu.Unlock()
	wakeFd := int(s.wakeR.Fd())
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		s.events <- KeySourceClosed{Err: fmt.Errorf("epoll_ctl_add wake pipe: %w", err)}
		close(s.events)
		return
	}

	var mods ModMask
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf)
	epollEvents := make([]unix.EpollEvent, 32)

	for {
		n, err := unix.EpollWait(epfd, epollEvents, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			s.events <- KeySourceClosed{Err: fmt.Errorf("epoll_wait: %w", err)}
			close(s.events)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			if fd == wakeFd {
				s.events <- KeySourceClosed{}
				close(s.events)
				return
			}

			path := fdToPath[fd]
			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				if !s.dropDevice(epfd, fdToPath, fd, path) {
					s.events <- KeySourceClosed{Err: fmt.Errorf("%s: device gone", path)}
					close(s.events)
					return
				}
				s.events <- KeyboardRemapped{}
				continue
			}

			s.mu.Lock()
			f := s.files[path]
			s.mu.Unlock()
			if f == nil {
				continue
			}

			if _, err := io.ReadFull(f, buf); err != nil {
				if !s.dropDevice(epfd, fdToPath, fd, path) {
					s.events <- KeySourceClosed{Err: fmt.Errorf("read %s: %w", path, err)}
					close(s.events)
					return
				}
				s.events <- KeyboardRemapped{}
				continue
			}

			reader.Reset(buf)
			var iev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &iev); err != nil {
				// Skip malformed events
				continue
			}
			if iev.Type != evKey {
				continue
			}

			if next, isMod := applyModifier(mods, iev.Code, iev.Value); isMod {
				mods = next
				continue
			}
			if iev.Value == evValuePress || iev.Value == evValueRepeat {
				s.events <- KeyPress{Code: iev.Code, Mods: mods}
			}
		}
	}
}

// dropDevice removes a dead device and tries to reopen any configured path
// that is currently missing (hotplug recovery). Returns false when no
// devices remain.
func (s *evdevSource) dropDevice(epfd int, fdToPath map[int]string, fd int, path string) bool {
	_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(fdToPath, fd)

	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.files[path]; f != nil {
		f.Close()
		delete(s.files, path)
	}
	s.logger.Warn("input device gone", "device", path)

	for _, p := range s.paths {
		if _, open := s.files[p]; open {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		nfd := int(f.Fd())
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(nfd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, nfd, &ev); err != nil {
			f.Close()
			continue
		}
		s.files[p] = f
		fdToPath[nfd] = p
		s.logger.Info("input device reopened", "device", p)
	}

	return len(s.files) > 0
}

func (s *evdevSource) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		f.Close()
	}
	s.files = map[string]*os.File{}
	s.wakeR.Close()
	s.wakeW.Close()
}

// readKeyBits fetches a device's EV_KEY capability bitmap.
func readKeyBits(f *os.File) ([]byte, error) {
	bits := make([]byte, keyBitmapBytes)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(eviocgbitKey), uintptr(unsafe.Pointer(&bits[0])))
	if errno != 0 {
		return nil, errno
	}
	return bits, nil
}

func hasKeyBit(bits []byte, code uint16) bool {
	i := int(code) / 8
	return i < len(bits) && bits[i]&(1<<(code%8)) != 0
}

// discoverKeyboards scans /dev/input for devices that look like keyboards
// (EV_KEY capability including the letter keys). Used when no devices are
// configured explicitly.
func discoverKeyboards() ([]string, error) {
	candidates, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	sort.Strings(candidates)

	var out []string
	for _, p := range candidates {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		bits, err := readKeyBits(f)
		f.Close()
		if err != nil {
			continue
		}
		// A keyboard has at least the 'a' and 'z' keys.
		if hasKeyBit(bits, keyNames["a"]) && hasKeyBit(bits, keyNames["z"]) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no keyboard devices found under /dev/input")
	}
	return out, nil
}
