package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/alem-hub/habit-hub/internal/application/command"
)

type HabitCmd struct {
	Add     HabitAddCmd     `cmd:"" help:"Add a new habit."`
	List    HabitListCmd    `cmd:"" help:"List habits."`
	Archive HabitArchiveCmd `cmd:"" help:"Deactivate a habit. Its history is kept."`
	Restore HabitRestoreCmd `cmd:"" help:"Reactivate an archived habit."`
}

type HabitAddCmd struct {
	Name         string  `arg:"" help:"Habit name."`
	User         string  `required:"" help:"Owner user ID."`
	Category     string  `required:"" enum:"morning,physical,nutrition,work,development,social,reflection,sleep" help:"Habit category."`
	Points       int     `default:"10" help:"Points per completion."`
	Tracking     string  `default:"binary" enum:"binary,numeric,duration,rating,text" help:"Tracking type."`
	Frequency    string  `default:"daily" enum:"daily,weekly,monthly" help:"Frequency."`
	Target       float64 `help:"Target value for numeric habits."`
	Unit         string  `help:"Unit of the target value."`
	DisplayOrder int     `name:"order" help:"Display order."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	h, err := ctx.Engine.CreateHabitHandler().Handle(context.Background(), command.CreateHabitCommand{
		UserID:       c.User,
		Name:         c.Name,
		Category:     c.Category,
		TrackingType: c.Tracking,
		Frequency:    c.Frequency,
		TargetValue:  c.Target,
		TargetUnit:   c.Unit,
		Points:       c.Points,
		DisplayOrder: c.DisplayOrder,
	})
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(h)
	}
	ctx.printf("Added habit %s (%s)\n", h.Name, h.ID)
	return nil
}

type HabitListCmd struct {
	User     string `required:"" help:"Owner user ID."`
	Archived bool   `help:"Include archived habits."`
}

func (c *HabitListCmd) Run(ctx *Context) error {
	habits, err := ctx.Engine.Store.GetHabits(context.Background(), c.User, !c.Archived)
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(habits)
	}
	if len(habits) == 0 {
		ctx.printf("No habits found.\n")
		return nil
	}

	w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tCATEGORY\tPOINTS\tSTATUS\n")
	for _, h := range habits {
		status := "active"
		if !h.IsActive {
			status = "archived"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", h.ID, h.Name, h.Category, h.Points, status)
	}
	return w.Flush()
}

type HabitArchiveCmd struct {
	ID   string `arg:"" help:"Habit ID."`
	User string `required:"" help:"Owner user ID."`
}

func (c *HabitArchiveCmd) Run(ctx *Context) error {
	return setActive(ctx, c.User, c.ID, false)
}

type HabitRestoreCmd struct {
	ID   string `arg:"" help:"Habit ID."`
	User string `required:"" help:"Owner user ID."`
}

func (c *HabitRestoreCmd) Run(ctx *Context) error {
	return setActive(ctx, c.User, c.ID, true)
}

func setActive(ctx *Context, userID, habitID string, active bool) error {
	h, err := ctx.Engine.CreateHabitHandler().HandleSetActive(context.Background(), command.SetHabitActiveCommand{
		UserID:  userID,
		HabitID: habitID,
		Active:  active,
	})
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(h)
	}
	verb := "Archived"
	if active {
		verb = "Restored"
	}
	ctx.printf("%s habit %s\n", verb, h.Name)
	return nil
}
