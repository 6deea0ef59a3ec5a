package log

import (
	"fmt"
	"path"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var pkgPath = reflect.TypeOf(formatter{}).PkgPath()

type formatter struct {
	pattern string
	time    string
}

// Format expands %time, %level, %field, %msg, %caller, %func and %n in the pattern.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	caller, fn := "unknown", "unknown"
	if frame, ok := callerFrame(); ok {
		caller, fn = describe(frame)
	}
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", entry.Level.String(),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", caller,
		"%func", fn,
		"%n", "\n",
	)
	return []byte(r.Replace(f.pattern)), nil
}

// callerFrame finds the first frame outside logrus and this package's
// adapter and formatter.
func callerFrame() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !internalFrame(f) {
			return f, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func internalFrame(f runtime.Frame) bool {
	if strings.Contains(f.Function, "github.com/sirupsen/logrus") {
		return true
	}
	if !strings.HasPrefix(f.Function, pkgPath+".") {
		return false
	}
	switch path.Base(f.File) {
	case "logger_adapter.go", "formatter.go":
		return true
	}
	return false
}

// describe returns "pkg/file.go:line" and the bare function name.
func describe(f runtime.Frame) (string, string) {
	// github.com/x/y/pkg.(*T).Method → pkg.(*T).Method
	fn := f.Function[strings.LastIndex(f.Function, "/")+1:]
	pkg, _, _ := strings.Cut(fn, ".")
	name := fn[strings.LastIndex(fn, ".")+1:]
	return fmt.Sprintf("%s/%s:%d", pkg, path.Base(f.File), f.Line), name
}

func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = k + "=" + fmt.Sprint(entry.Data[k])
	}
	return strings.Join(fields, ",")
}
