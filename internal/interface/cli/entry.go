package cli

import (
	"context"

	"github.com/alem-hub/habit-hub/internal/application/command"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

type EntryCmd struct {
	Log EntryLogCmd `cmd:"" help:"Record today's (or a past day's) outcome for a habit."`
}

type EntryLogCmd struct {
	HabitID    string   `arg:"" name:"habit" help:"Habit ID."`
	Status     string   `arg:"" enum:"completed,skipped,partial,failed" help:"Outcome: completed, skipped, partial or failed."`
	User       string   `required:"" help:"Owner user ID."`
	Date       string   `help:"Day as YYYY-MM-DD (default: today)."`
	Value      *float64 `help:"Measured value for numeric habits."`
	Minutes    *int     `help:"Time spent in minutes."`
	Difficulty *int     `help:"Perceived difficulty (1-5)."`
	Mood       *int     `help:"Mood afterwards (1-5)."`
	Note       string   `help:"Free-form note."`
}

func (c *EntryLogCmd) Run(ctx *Context) error {
	res, err := ctx.Engine.RecordEntryHandler().Handle(context.Background(), command.RecordEntryCommand{
		UserID:           c.User,
		HabitID:          c.HabitID,
		Date:             c.Date,
		Status:           c.Status,
		Value:            c.Value,
		Text:             c.Note,
		TimeSpentMinutes: c.Minutes,
		Difficulty:       c.Difficulty,
		Mood:             c.Mood,
	})
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(struct {
			EntryID   string         `json:"entry_id"`
			Date      string         `json:"date"`
			Status    string         `json:"status"`
			Corrected bool           `json:"corrected"`
			Recompute *recomputeView `json:"recompute,omitempty"`
		}{
			EntryID:   res.Entry.ID,
			Date:      timeutil.FormatDate(res.Entry.Date),
			Status:    string(res.Entry.Status),
			Corrected: res.Corrected,
			Recompute: newRecomputeView(res.Recompute),
		})
	}

	verb := "Logged"
	if res.Corrected {
		verb = "Corrected"
	}
	ctx.printf("%s %s for %s\n", verb, res.Entry.Status, timeutil.FormatDate(res.Entry.Date))
	printRecompute(ctx, newRecomputeView(res.Recompute))
	return nil
}
