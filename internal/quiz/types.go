/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package quiz holds the shared data model for the session engine:
// sessions, items, players and answers, plus the enumerations the rest
// of the engine dispatches on. Nothing in this package talks to a
// socket or a database; it is the arena every other package reaches
// into by id.
package quiz

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	StatusLobby    SessionStatus = "LOBBY"
	StatusActive   SessionStatus = "ACTIVE"
	StatusPaused   SessionStatus = "PAUSED"
	StatusEnded    SessionStatus = "ENDED"
	StatusArchived SessionStatus = "ARCHIVED"
)

// ItemType enumerates the kinds of entries in a session's item list.
type ItemType string

const (
	ItemQuestion   ItemType = "QUESTION"
	ItemMinigame   ItemType = "MINIGAME"
	ItemScoreboard ItemType = "SCOREBOARD"
	ItemBreak      ItemType = "BREAK"
)

// QuestionType is the enumerated question kind, per the glossary.
type QuestionType string

const (
	QMCSingle             QuestionType = "MC_SINGLE"
	QMCMultiple           QuestionType = "MC_MULTIPLE"
	QTrueFalse            QuestionType = "TRUE_FALSE"
	QOpenText             QuestionType = "OPEN_TEXT"
	QEstimation           QuestionType = "ESTIMATION"
	QOrder                QuestionType = "ORDER"
	QPoll                 QuestionType = "POLL"
	QPhotoQuestion        QuestionType = "PHOTO_QUESTION"
	QAudioQuestion        QuestionType = "AUDIO_QUESTION"
	QVideoQuestion        QuestionType = "VIDEO_QUESTION"
	QPhotoOpen            QuestionType = "PHOTO_OPEN"
	QAudioOpen            QuestionType = "AUDIO_OPEN"
	QVideoOpen            QuestionType = "VIDEO_OPEN"
	QMusicGuessTitle      QuestionType = "MUSIC_GUESS_TITLE"
	QMusicGuessArtist     QuestionType = "MUSIC_GUESS_ARTIST"
	QMusicGuessYear       QuestionType = "MUSIC_GUESS_YEAR"
	QYoutubeScene         QuestionType = "YOUTUBE_SCENE_QUESTION"
	QYoutubeNextLine      QuestionType = "YOUTUBE_NEXT_LINE"
	QYoutubeWhoSaidIt     QuestionType = "YOUTUBE_WHO_SAID_IT"
)

// AnswerFormat is the shape a coerced player submission takes.
type AnswerFormat string

const (
	FormatOptionID  AnswerFormat = "OPTION_ID"
	FormatOptionIDs AnswerFormat = "OPTION_IDS"
	FormatBoolean   AnswerFormat = "BOOLEAN"
	FormatText      AnswerFormat = "TEXT"
	FormatNumber    AnswerFormat = "NUMBER"
	FormatOrder     AnswerFormat = "ORDER_ARRAY"
	FormatNoAnswer  AnswerFormat = "NO_ANSWER"
)

// ScoringMode is the rule mapping (player answer, correct answer) to a
// 0-100 percentage.
type ScoringMode string

const (
	ScoreExactMatch       ScoringMode = "EXACT_MATCH"
	ScorePartialMulti     ScoringMode = "PARTIAL_MULTI"
	ScorePartialOrder     ScoringMode = "PARTIAL_ORDER"
	ScoreFuzzyText        ScoringMode = "FUZZY_TEXT"
	ScoreNumericDistance  ScoringMode = "NUMERIC_DISTANCE"
	ScoreNumericYear      ScoringMode = "NUMERIC_DISTANCE_YEAR"
	ScoreNoScore          ScoringMode = "NO_SCORE"
)

// FormatFor returns the answer format a question type coerces to.
func FormatFor(qt QuestionType) AnswerFormat {
	switch qt {
	case QMCSingle, QTrueFalse, QPhotoQuestion, QAudioQuestion, QVideoQuestion, QYoutubeWhoSaidIt:
		if qt == QTrueFalse {
			return FormatBoolean
		}
		return FormatOptionID
	case QMCMultiple:
		return FormatOptionIDs
	case QOrder:
		return FormatOrder
	case QEstimation, QMusicGuessYear:
		return FormatNumber
	case QOpenText, QPhotoOpen, QAudioOpen, QVideoOpen,
		QMusicGuessTitle, QMusicGuessArtist,
		QYoutubeNextLine, QYoutubeScene:
		return FormatText
	case QPoll:
		return FormatNoAnswer
	default:
		return FormatText
	}
}

// ModeFor returns the scoring mode a question type uses.
func ModeFor(qt QuestionType) ScoringMode {
	switch qt {
	case QMCSingle, QTrueFalse, QPhotoQuestion, QAudioQuestion, QVideoQuestion, QYoutubeWhoSaidIt:
		return ScoreExactMatch
	case QMCMultiple:
		return ScorePartialMulti
	case QOrder:
		return ScorePartialOrder
	case QOpenText, QPhotoOpen, QAudioOpen, QVideoOpen,
		QMusicGuessTitle, QMusicGuessArtist,
		QYoutubeNextLine, QYoutubeScene:
		return ScoreFuzzyText
	case QEstimation:
		return ScoreNumericDistance
	case QMusicGuessYear:
		return ScoreNumericYear
	case QPoll:
		return ScoreNoScore
	default:
		return ScoreExactMatch
	}
}

// Option is one selectable answer choice on a question item.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Order     int    `json:"order"`
	IsCorrect bool   `json:"isCorrect"`
}

// Settings is the free-form scoring/behavior knob bag for an item,
// per spec §3's "settings blob".
type Settings struct {
	MarginPercent       float64  `json:"marginPercent,omitempty"`
	AcceptableAnswers   []string `json:"acceptableAnswers,omitempty"`
	CorrectAnswerText   string   `json:"correctAnswer,omitempty"`
	CorrectAnswerNumber float64  `json:"correctAnswerNumber,omitempty"`
	BasePoints          int      `json:"basePoints"`
	StreakBonus         bool     `json:"streakBonus"`
	StreakPoints        int      `json:"streakPoints"`
	PodiumEnabled       bool     `json:"podiumEnabled"`
	PodiumPct1          int      `json:"podiumPct1"`
	PodiumPct2          int      `json:"podiumPct2"`
	PodiumPct3          int      `json:"podiumPct3"`
}

// PodiumSplit returns the podium percentages, filling in the spec's
// default 30/20/10 split when the settings blob leaves them at zero.
func (s Settings) PodiumSplit() (p1, p2, p3 int) {
	p1, p2, p3 = s.PodiumPct1, s.PodiumPct2, s.PodiumPct3
	if p1 == 0 && p2 == 0 && p3 == 0 {
		return 30, 20, 10
	}
	return p1, p2, p3
}

// Item is one entry in a session's ordered item list.
type Item struct {
	ID           string       `json:"id"`
	Type         ItemType     `json:"type"`
	QuestionType QuestionType `json:"questionType,omitempty"`
	Prompt       string       `json:"prompt,omitempty"`
	Options      []Option     `json:"options,omitempty"`
	MediaRefs    []string     `json:"mediaRefs,omitempty"`
	TimerSeconds int          `json:"timerSeconds,omitempty"`
	Settings     Settings     `json:"settings"`
}

// Player is one participant in a session.
type Player struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"displayName"`
	Avatar           string    `json:"avatar,omitempty"`
	DeviceFingerprint string   `json:"-"`
	Score            int       `json:"score"`
	Streak           int       `json:"streak"`
	Online           bool      `json:"online"`
	JoinedAt         time.Time `json:"joinedAt"`
	LeftAt           *time.Time `json:"leftAt,omitempty"`
}

// Answer is one player's committed submission for one item.
type Answer struct {
	SessionID          string  `json:"sessionId"`
	ItemID             string  `json:"itemId"`
	PlayerID           string  `json:"playerId"`
	Raw                any     `json:"raw"`
	Normalized         any     `json:"normalized"`
	IsCorrect          *bool   `json:"isCorrect"`
	ScorePercentage    float64 `json:"scorePercentage"`
	Score              int     `json:"score"`
	TimeSpentMs        int64   `json:"timeSpentMs"`
	IsManuallyAdjusted bool    `json:"isManuallyAdjusted"`
	CreatedAt          time.Time `json:"createdAt"`
}

// PodiumConfig mirrors Settings' podium fields for C6's input.
type PodiumConfig struct {
	Enabled bool
	Pct1    int
	Pct2    int
	Pct3    int
}

// Session is the authoritative record for one live quiz run.
type Session struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	Status           SessionStatus `json:"status"`
	QuizSnapshotID   string        `json:"quizSnapshotId"`
	Theme            string        `json:"theme,omitempty"`
	WorkspaceID      string        `json:"workspaceId,omitempty"`
	Items            []Item        `json:"items"`
	CurrentItemIndex int           `json:"currentItemIndex"`
	StateVersion     int64         `json:"stateVersion"`
	PersistenceDegraded bool       `json:"persistenceDegraded"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
