package system

import (
	"bufio"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Provider supplies the host facts reported with every ping. The ingestion
// side uses it for the storage engine version so callers cannot spoof it.
type Provider interface {
	PlatformVersion() string
	RuntimeVersion() string
	StorageEngineVersion() string
}

type Static struct {
	Platform string
	Runtime  string
	Engine   string
}

func (s Static) PlatformVersion() string      { return s.Platform }
func (s Static) RuntimeVersion() string       { return s.Runtime }
func (s Static) StorageEngineVersion() string { return s.Engine }

type Local struct {
	osRelease string
	engine    func() (string, error)

	mu            sync.Mutex
	engineVersion string
}

func NewLocal(engine func() (string, error)) *Local {
	return &Local{
		osRelease: "/etc/os-release",
		engine:    engine,
	}
}

func (l *Local) PlatformVersion() string {
	name := readOSRelease(l.osRelease, "NAME")
	version := readOSRelease(l.osRelease, "VERSION_ID")
	if name == "" {
		return runtime.GOOS + "/" + runtime.GOARCH
	}
	if version == "" {
		return name
	}
	return name + " " + version
}

func (l *Local) RuntimeVersion() string {
	return strings.TrimPrefix(runtime.Version(), "go")
}

// StorageEngineVersion asks the store once and remembers the first answer.
// Failures are retried on the next call and reported as "unknown".
func (l *Local) StorageEngineVersion() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engineVersion != "" {
		return l.engineVersion
	}
	if l.engine == nil {
		return "unknown"
	}
	v, err := l.engine()
	if err != nil || v == "" {
		return "unknown"
	}
	l.engineVersion = v
	return v
}

func readOSRelease(path, key string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, key+"=") {
			val := strings.TrimPrefix(line, key+"=")
			return strings.Trim(val, "\"")
		}
	}
	return ""
}
