package version

import "runtime/debug"

// Version is set at release time:
//
//	go build -ldflags "-X github.com/vanderheijden86/breathwork/pkg/version.Version=v1.2.3"
//
// Development builds fall back to the module version recorded by the Go
// toolchain, then to "dev".
var Version = ""

func init() {
	if Version != "" {
		return
	}
	Version = "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

// Revision is the VCS commit the binary was built from, shortened, or ""
// when the build carries no VCS stamp.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
