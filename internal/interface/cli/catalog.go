package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/alem-hub/habit-hub/internal/infrastructure/catalog"
)

type CatalogCmd struct {
	Show     CatalogShowCmd     `cmd:"" default:"1" help:"Show the active level table and achievements."`
	Validate CatalogValidateCmd `cmd:"" help:"Validate a catalog file without loading it into the engine."`
	Export   CatalogExportCmd   `cmd:"" help:"Print the active catalogs as a catalog file."`
}

type CatalogShowCmd struct{}

func (c *CatalogShowCmd) Run(ctx *Context) error {
	cats := ctx.Engine.Catalogs
	if ctx.JSON {
		return ctx.printJSON(catalog.File{
			Levels:       cats.Levels.Levels(),
			Achievements: cats.Achievements.All(),
		})
	}

	w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "LEVEL\tNAME\tREQUIRED XP\n")
	for _, l := range cats.Levels.Levels() {
		fmt.Fprintf(w, "%d\t%s %s\t%d\n", l.Level, l.Emoji, l.Name, l.RequiredXP)
	}
	fmt.Fprintf(w, "\nCODE\tRARITY\tPOINTS\tREQUIREMENT\n")
	for _, a := range cats.Achievements.All() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.Code, a.Rarity, a.Points, a.Requirement)
	}
	return w.Flush()
}

type CatalogValidateCmd struct {
	Path string `arg:"" type:"existingfile" help:"Catalog JSON file."`
}

// Run fails on structural errors and on any malformed requirement.
func (c *CatalogValidateCmd) Run(ctx *Context) error {
	cats, err := catalog.Load(c.Path)
	if err != nil {
		return err
	}

	var invalid int
	for _, a := range cats.Achievements.All() {
		if err := a.Requirement.Validate(); err != nil {
			invalid++
			ctx.printf("%s: %v\n", a.Code, err)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d achievement(s) have malformed requirements", invalid)
	}

	ctx.printf("OK: %d levels, %d achievements\n", cats.Levels.MaxLevel(), cats.Achievements.Len())
	return nil
}

type CatalogExportCmd struct{}

func (c *CatalogExportCmd) Run(ctx *Context) error {
	cats := ctx.Engine.Catalogs
	return ctx.printJSON(catalog.File{
		Levels:       cats.Levels.Levels(),
		Achievements: cats.Achievements.All(),
	})
}
