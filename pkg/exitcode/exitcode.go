// Package exitcode provides the process exit codes of the folio CLI
package exitcode

// Exit codes for folio. CI workflows branch on these values, so they are
// part of the command-line contract.
const (
	Success          = 0
	BuildFailed      = 1 // every attempted target failed, or a generic error
	NothingToPublish = 2 // no build=true entries, or no manifest found
	ManifestInvalid  = 3 // bad version or structural schema violation
	PersistError     = 4 // manifest could not be written back
	ManifestParse    = 5 // manifest is not valid YAML
	FontUnavailable  = 6 // a required colour emoji font is missing
	TimeoutError     = 7 // every failed target hit the typesetter timeout
	ToolNotFound     = 9 // typesetter binary missing from PATH
)

// GeneralError is the fallback for errors without a dedicated code.
const GeneralError = BuildFailed

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case BuildFailed:
		return "Build failed"
	case NothingToPublish:
		return "Nothing to publish"
	case ManifestInvalid:
		return "Invalid manifest"
	case PersistError:
		return "Manifest persistence error"
	case ManifestParse:
		return "Manifest parse error"
	case FontUnavailable:
		return "Required font unavailable"
	case TimeoutError:
		return "Typesetter timeout"
	case ToolNotFound:
		return "Tool not found"
	default:
		return "Unknown error"
	}
}
