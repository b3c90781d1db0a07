package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRunStatus  = "run_status"
	KeyTrigger    = "trigger"
	KeyRepo       = "repository"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyStage      = "stage"
	KeyStep       = "step"
	KeyStepIndex  = "step_index"
	KeyExitCode   = "exit_code"
	KeyTarget     = "target"
	KeyDurationMS = "duration_ms"
	KeySchedule   = "schedule_name"
	KeyWorker     = "worker"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyForgeType  = "forge_type"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func RunStatus(s string) slog.Attr    { return slog.String(KeyRunStatus, s) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func StepIndex(i int) slog.Attr       { return slog.Int(KeyStepIndex, i) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func ScheduleName(n string) slog.Attr { return slog.String(KeySchedule, n) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func ForgeType(f string) slog.Attr    { return slog.String(KeyForgeType, f) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
