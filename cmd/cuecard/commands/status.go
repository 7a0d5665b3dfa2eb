package commands

import (
	"time"

	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/audio"
)

// statusView is the /statusz body of a running session.
type statusView struct {
	SessionID string  `json:"session_id"`
	Setlist   string  `json:"setlist"`
	Phase     string  `json:"phase"`
	Position  string  `json:"position"`
	Text      string  `json:"text"`
	Progress  float64 `json:"progress"`
	Listening bool    `json:"listening"`
	Recording bool    `json:"recording"`
	Paused    bool    `json:"paused"`
	Degraded  bool    `json:"degraded"`
	Elapsed   string  `json:"elapsed"`
	LevelDBFS float64 `json:"level_dbfs"`
}

func newStatusView(s *session.Session) statusView {
	snap := s.Snapshot()
	return statusView{
		SessionID: s.ID(),
		Setlist:   s.Plan().Config.Script.Title,
		Phase:     snap.Phase.String(),
		Position:  snap.ProgressLabel(),
		Text:      snap.Text,
		Progress:  snap.Progress,
		Listening: snap.Listening,
		Recording: snap.Recording,
		Paused:    snap.Paused,
		Degraded:  snap.Degraded,
		Elapsed:   snap.Elapsed.Round(time.Second).String(),
		LevelDBFS: audio.DBFS(snap.Level),
	}
}

// managerStatus reports the active session of mgr, or nil when idle.
func managerStatus(mgr *session.Manager) func() any {
	return func() any {
		s := mgr.Active()
		if s == nil {
			return nil
		}
		return newStatusView(s)
	}
}
