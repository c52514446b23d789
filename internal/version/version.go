/*
Copyright (c) Tobias Schäfer. All rights reserved.
Licensed under the MIT license, see LICENSE in the project root for details.
*/
package version

import (
	"fmt"
	"io"
	"os"
)

var (
	GitCommit, Version string
)

func Release() string {
	if Version == "" {
		Version = "dev"
	}

	return Version
}

func Commit() string {
	return GitCommit
}

func Banner() string {
	return `
  __ _ _ _                 _   _
 / _(_) | |_ ___ _ __ ___| |_| |
| |_| | | __/ _ \ '__/ __| __| |
|  _| | | ||  __/ | | (__| |_| |
|_| |_|_|\__\___|_|  \___|\__|_|
 `
}

func Print() {
	Fprint(os.Stdout)
}

// Fprint writes banner, release and commit, the banner colored unless
// NO_COLOR is 1 or true.
func Fprint(w io.Writer) {
	noColor, ok := os.LookupEnv("NO_COLOR")
	if ok && (noColor == "1" || noColor == "true") {
		_, _ = fmt.Fprintf(w, "%s\n", Banner())
	} else {
		_, _ = fmt.Fprintf(w, "\033[34m%s\033[0m\n", Banner())
	}
	_, _ = fmt.Fprintf(w, "Release: %s\n", Release())
	_, _ = fmt.Fprintf(w, "Commit:  %s\n", Commit())
}
