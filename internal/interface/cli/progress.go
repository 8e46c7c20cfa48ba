package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/alem-hub/habit-hub/internal/application/query"
	"github.com/alem-hub/habit-hub/internal/application/saga"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// recomputeView is the printable outcome of one recompute.
type recomputeView struct {
	Date            string   `json:"date"`
	TotalPoints     int      `json:"total_points"`
	CompletionRate  int      `json:"completion_rate"`
	IsPerfectDay    bool     `json:"is_perfect_day"`
	Level           int      `json:"level"`
	LevelName       string   `json:"level_name"`
	TotalXP         int      `json:"total_xp"`
	LevelUp         bool     `json:"level_up"`
	NewAchievements []string `json:"new_achievements,omitempty"`
}

func newRecomputeView(r *saga.RecomputeResult) *recomputeView {
	if r == nil {
		return nil
	}
	v := &recomputeView{
		Date:      timeutil.FormatDate(r.Date),
		Level:     r.Level.Level,
		LevelName: r.Level.Name,
		TotalXP:   r.Level.TotalXP,
		LevelUp:   r.LevelUp != nil,
	}
	if r.DailyScore != nil {
		v.TotalPoints = r.DailyScore.TotalPoints
		v.CompletionRate = r.DailyScore.CompletionRate()
		v.IsPerfectDay = r.DailyScore.IsPerfectDay()
	}
	for _, u := range r.NewAchievements {
		v.NewAchievements = append(v.NewAchievements, u.Code)
	}
	return v
}

func printRecompute(ctx *Context, v *recomputeView) {
	if v == nil {
		return
	}
	ctx.printf("  %s: %d points, %d%% complete", v.Date, v.TotalPoints, v.CompletionRate)
	if v.IsPerfectDay {
		ctx.printf(" (perfect day)")
	}
	ctx.printf("\n  Level %d %s, %d XP\n", v.Level, v.LevelName, v.TotalXP)
	if v.LevelUp {
		ctx.printf("  Level up!\n")
	}
	for _, code := range v.NewAchievements {
		ctx.printf("  Unlocked %s\n", code)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// recompute
// ─────────────────────────────────────────────────────────────────────────────

type RecomputeCmd struct {
	User string `required:"" help:"User ID."`
	Date string `help:"Last day to recompute as YYYY-MM-DD (default: today)."`
	Days int    `default:"1" help:"Number of days ending at --date, recomputed oldest first."`
}

func (c *RecomputeCmd) Run(ctx *Context) error {
	if c.Days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	last, err := ctx.day(c.Date)
	if err != nil {
		return err
	}

	views := make([]*recomputeView, 0, c.Days)
	for i := c.Days - 1; i >= 0; i-- {
		res, err := ctx.Engine.Flow.Recompute(context.Background(), c.User, last.AddDate(0, 0, -i))
		if err != nil {
			return err
		}
		views = append(views, newRecomputeView(res))
	}

	if ctx.JSON {
		return ctx.printJSON(views)
	}
	for _, v := range views {
		printRecompute(ctx, v)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// level
// ─────────────────────────────────────────────────────────────────────────────

type LevelCmd struct {
	User string `required:"" help:"User ID."`
}

func (c *LevelCmd) Run(ctx *Context) error {
	dto, err := ctx.Engine.GetProgressHandler().Handle(context.Background(), query.GetProgressQuery{UserID: c.User})
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(dto)
	}
	ctx.printf("%s Level %d %s\n", dto.Emoji, dto.Level, dto.Name)
	if dto.IsMaxLevel {
		ctx.printf("%d XP (max level)\n", dto.TotalXP)
	} else {
		ctx.printf("%d XP, %d%% of the way, %d XP to the next level\n", dto.TotalXP, dto.Percent, dto.XPToNextLevel)
	}
	ctx.printf("Longest streak: %d days\n", dto.LongestStreak)
	for _, a := range dto.Achievements {
		ctx.printf("  %s %s (%s, +%d)\n", a.Emoji, a.Title, a.Rarity, a.Points)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// streak
// ─────────────────────────────────────────────────────────────────────────────

type StreakCmd struct {
	HabitID string `arg:"" name:"habit" help:"Habit ID."`
	User    string `required:"" help:"Owner user ID."`
}

func (c *StreakCmd) Run(ctx *Context) error {
	dto, err := ctx.Engine.GetStreakHandler().Handle(context.Background(), query.GetStreakQuery{
		UserID:  c.User,
		HabitID: c.HabitID,
	})
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(dto)
	}
	state := "broken"
	if dto.IsActive {
		state = "active"
	}
	ctx.printf("%s: current %d (%s), longest %d\n", dto.HabitName, dto.Current, state, dto.Longest)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// score
// ─────────────────────────────────────────────────────────────────────────────

type ScoreCmd struct {
	User string `required:"" help:"User ID."`
	Date string `help:"Day as YYYY-MM-DD (default: today)."`
}

func (c *ScoreCmd) Run(ctx *Context) error {
	day, err := ctx.day(c.Date)
	if err != nil {
		return err
	}
	dto, err := ctx.Engine.GetDailyScoreHandler().Handle(context.Background(), query.GetDailyScoreQuery{
		UserID: c.User,
		Date:   day,
	})
	if err != nil {
		return err
	}

	if ctx.JSON {
		return ctx.printJSON(dto)
	}
	ctx.printf("%s: %d points, %d/%d habits (%d%%)\n",
		dto.Date, dto.TotalPoints, dto.CompletedHabits, dto.TotalHabits, dto.CompletionRate)

	categories := make([]string, 0, len(dto.Categories))
	for cat := range dto.Categories {
		categories = append(categories, string(cat))
	}
	sort.Strings(categories)

	w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
	for _, cat := range categories {
		fmt.Fprintf(w, "  %s\t%d\n", cat, dto.Categories[shared.Category(cat)])
	}
	return w.Flush()
}
