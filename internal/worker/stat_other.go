//go:build !unix

package worker

import "os"

func inodeOf(info os.FileInfo) string {
	return ""
}
