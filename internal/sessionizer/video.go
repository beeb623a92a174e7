package sessionizer

import (
	"strconv"
	"time"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

const (
	pauseMergeMin    = 2 * time.Second
	pauseMergeMax    = 600 * time.Second
	speedChangeGap   = 10 * time.Second
	videoInteraction = "video"
)

// videoCarry holds an interaction closed by a pause. It is emitted when the
// next play arrives, absorbing the pause when that play resumes the same video
// within the merge range.
type videoCarry struct {
	Held    models.VideoInteraction
	HasHeld bool
}

// VideoState is the carried state of the video segmenter.
type VideoState = State[videoCarry]

// Video segments play-to-pause/stop spans of a single video into interactions.
type Video struct {
	cfg Config
}

// NewVideo builds a video segmenter.
func NewVideo(cfg Config) *Video {
	return &Video{cfg: cfg.withDefaults()}
}

// Advance folds a chunk of events into the state.
func (v *Video) Advance(st VideoState, events []eventlog.Event) (VideoState, []models.VideoInteraction) {
	return advance[videoCarry, models.VideoInteraction](st, events, v.newMachine, foldOptions{})
}

// Flush emits interactions still waiting for a resuming play. Videos still
// playing at run end have no closing event and are discarded.
func (v *Video) Flush(st VideoState) []models.VideoInteraction {
	return flush[videoCarry, models.VideoInteraction](st, v.newMachine)
}

func (v *Video) newMachine(learner string, carry videoCarry) machine[videoCarry, models.VideoInteraction] {
	return &videoMachine{cfg: v.cfg, learner: learner, c: carry}
}

type videoMachine struct {
	windowBase
	noUnresolved
	cfg     Config
	learner string
	c       videoCarry
	anchor  videoCarry

	videoID         string
	forwardTimes    int
	forwardSeconds  float64
	backwardTimes   int
	backwardSeconds float64
	speedUp         int
	speedDown       int
	lastSpeedChange time.Time
}

func (m *videoMachine) step(ev eventlog.Event) []models.VideoInteraction {
	m.justOpened = false
	kind := ClassifyVideo(ev.Type)

	if kind == VideoPlay {
		out := m.releaseHeld(ev)
		if !m.isOpen {
			m.begin(ev.Time)
			m.anchor = m.c
		}
		m.start = ev.Time
		m.videoID = ev.Payload.VideoID
		return out
	}
	if !m.isOpen {
		return nil
	}
	if m.cfg.expired(m.start, ev.Time) {
		m.close()
		return nil
	}

	sameVideo := ev.Payload.VideoID == m.videoID
	switch {
	case kind == VideoSeek && sameVideo:
		if ev.Payload.HasPosition {
			delta := ev.Payload.NewTime - ev.Payload.OldTime
			if delta > 0 {
				m.forwardTimes++
				m.forwardSeconds += delta
			} else if delta < 0 {
				m.backwardTimes++
				m.backwardSeconds -= delta
			}
		}
	case kind == VideoSpeed && sameVideo:
		if m.lastSpeedChange.IsZero() || ev.Time.Sub(m.lastSpeedChange) > speedChangeGap {
			if ev.Payload.OldSpeed < ev.Payload.NewSpeed {
				m.speedUp++
			} else if ev.Payload.OldSpeed > ev.Payload.NewSpeed {
				m.speedDown++
			}
		}
		m.lastSpeedChange = ev.Time
	case (kind == VideoPause || kind == VideoStop) && sameVideo:
		interaction, ok := m.interaction(ev.Time)
		m.close()
		if !ok {
			return nil
		}
		if kind == VideoPause {
			m.c = videoCarry{Held: interaction, HasHeld: true}
			return nil
		}
		return []models.VideoInteraction{interaction}
	case kind == VideoNone:
		interaction, ok := m.interaction(ev.Time)
		m.close()
		if ok {
			return []models.VideoInteraction{interaction}
		}
	}
	return nil
}

// releaseHeld emits the interaction waiting on a pause, merging the pause when
// play resumes the same video within the merge range.
func (m *videoMachine) releaseHeld(play eventlog.Event) []models.VideoInteraction {
	if !m.c.HasHeld {
		return nil
	}
	held := m.c.Held
	gap := play.Time.Sub(held.EndTime)
	if held.VideoID == play.Payload.VideoID && gap > pauseMergeMin && gap < pauseMergeMax {
		held.TimesPause++
		held.DurationPause += gap.Seconds()
	}
	m.c = videoCarry{}
	return []models.VideoInteraction{held}
}

func (m *videoMachine) interaction(end time.Time) (models.VideoInteraction, bool) {
	if !m.cfg.qualifies(m.start, end) {
		return models.VideoInteraction{}, false
	}
	return models.VideoInteraction{
		SessionID:            m.learner + "_" + m.videoID + "_" + strconv.FormatInt(end.UnixMilli(), 10),
		CourseLearnerID:      m.learner,
		VideoID:              m.videoID,
		Type:                 videoInteraction,
		StartTime:            m.start,
		EndTime:              end,
		Duration:             models.Seconds(m.start, end),
		TimesForwardSeek:     m.forwardTimes,
		DurationForwardSeek:  m.forwardSeconds,
		TimesBackwardSeek:    m.backwardTimes,
		DurationBackwardSeek: m.backwardSeconds,
		TimesSpeedUp:         m.speedUp,
		TimesSpeedDown:       m.speedDown,
	}, true
}

func (m *videoMachine) close() {
	m.reset()
	m.videoID = ""
	m.forwardTimes, m.forwardSeconds = 0, 0
	m.backwardTimes, m.backwardSeconds = 0, 0
	m.speedUp, m.speedDown = 0, 0
	m.lastSpeedChange = time.Time{}
}

func (m *videoMachine) flush() []models.VideoInteraction {
	if !m.c.HasHeld {
		return nil
	}
	held := m.c.Held
	m.c = videoCarry{}
	return []models.VideoInteraction{held}
}

func (m *videoMachine) anchorCarry() videoCarry { return m.anchor }
func (m *videoMachine) carry() videoCarry       { return m.c }
