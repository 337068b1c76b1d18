// Package report exports finished sessions as FIT activities and angle charts.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/store"
)

// ErrSessionActive is returned when exporting a session that has not finished.
var ErrSessionActive = errors.New("session still active")

// productID identifies repcoach in the FileId message.
const productID = 1

var categories = map[string]typedef.ExerciseCategory{
	"lateral_raise":  typedef.ExerciseCategoryLateralRaise,
	"flye":           typedef.ExerciseCategoryFlye,
	"shoulder_press": typedef.ExerciseCategoryShoulderPress,
	"curl":           typedef.ExerciseCategoryCurl,
	"front_raise":    typedef.ExerciseCategoryLateralRaise,
}

// Category maps an exercise category name to its FIT exercise category.
func Category(name string) typedef.ExerciseCategory {
	if c, ok := categories[name]; ok {
		return c
	}
	return typedef.ExerciseCategoryUnknown
}

// FIT builds a strength training activity holding one active set for sess.
func FIT(sess *store.Session, summary analysis.Summary, ex *exercise.Exercise) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if sess.Status != store.SessionFinished || sess.EndedAt == nil {
		return nil, ErrSessionActive
	}

	start := sess.StartedAt.UTC()
	end := sess.EndedAt.UTC()
	elapsed := uint32(end.Sub(start) / time.Millisecond)

	reps := summary.Reps
	if reps == 0 {
		reps = sess.Reps
	}

	category := typedef.ExerciseCategoryUnknown
	if ex != nil {
		category = Category(ex.Category)
	}

	fit := &proto.FIT{
		Messages: []proto.Message{},
	}

	fileID := mesgdef.NewFileId(nil).
		SetType(typedef.FileActivity).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(productID).
		SetTimeCreated(start)
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil))

	set := mesgdef.NewSet(nil).
		SetTimestamp(end).
		SetStartTime(start).
		SetCategory([]typedef.ExerciseCategory{category}).
		SetSetType(typedef.SetTypeActive).
		SetMessageIndex(0).
		SetDuration(elapsed)
	if reps > 0 {
		set.SetRepetitions(uint16(reps))
	}
	fit.Messages = append(fit.Messages, set.ToMesg(nil))

	lap := mesgdef.NewLap(nil).
		SetTimestamp(end).
		SetStartTime(start).
		SetSport(typedef.SportTraining).
		SetMessageIndex(0).
		SetTotalElapsedTime(elapsed).
		SetTotalTimerTime(elapsed)
	fit.Messages = append(fit.Messages, lap.ToMesg(nil))

	session := mesgdef.NewSession(nil).
		SetTimestamp(end).
		SetStartTime(start).
		SetSport(typedef.SportTraining).
		SetSubSport(typedef.SubSportStrengthTraining).
		SetTotalElapsedTime(elapsed).
		SetTotalTimerTime(elapsed)
	fit.Messages = append(fit.Messages, session.ToMesg(nil))

	activity := mesgdef.NewActivity(nil).
		SetTimestamp(end).
		SetType(typedef.ActivityManual).
		SetNumSessions(1)
	fit.Messages = append(fit.Messages, activity.ToMesg(nil))

	var buf bytes.Buffer
	if err := encoder.New(&buf).Encode(fit); err != nil {
		return nil, fmt.Errorf("failed to encode FIT file: %w", err)
	}

	return buf.Bytes(), nil
}
