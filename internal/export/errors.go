package export

import "fmt"

// ExportFailedError reports an export run that produced no artifact within
// the configured timeout.
type ExportFailedError struct {
	Path string
}

func (e *ExportFailedError) Error() string {
	return fmt.Sprintf("export failed: artifact %s never appeared", e.Path)
}
