package memory

import (
	"path/filepath"
	"runtime"
	"strconv"
)

// Site is a source location recorded for debugging.
type Site struct {
	File string
	Line int
}

func (s Site) String() string {
	if s.File == "" {
		return "unknown"
	}
	return s.File + ":" + strconv.Itoa(s.Line)
}

// callerSite returns the location skip frames above its caller.
func callerSite(skip int) Site {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	return Site{File: filepath.Base(file), Line: line}
}
