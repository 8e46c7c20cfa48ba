package achievement

import "github.com/alem-hub/habit-hub/internal/domain/shared"

// DefaultAchievements - каталог достижений по умолчанию.
var DefaultAchievements = []Achievement{
	{
		Code:        "primer-paso",
		Title:       "Primer Paso",
		Description: "Completa tu primer hábito",
		Rarity:      RarityCommon,
		Category:    CategoryHabits,
		Points:      10,
		Requirement: FirstHabitRequirement(),
	},
	{
		Code:        "semana-de-fuego",
		Title:       "Semana de Fuego",
		Description: "Mantén una racha de 7 días",
		Rarity:      RarityRare,
		Category:    CategoryStreak,
		Points:      50,
		Requirement: StreakRequirement(7),
	},
	{
		Code:        "mes-imparable",
		Title:       "Mes Imparable",
		Description: "Mantén una racha de 30 días",
		Rarity:      RarityEpic,
		Category:    CategoryStreak,
		Points:      200,
		Requirement: StreakRequirement(30),
	},
	{
		Code:        "centenario",
		Title:       "Centenario",
		Description: "Mantén una racha de 100 días",
		Rarity:      RarityLegendary,
		Category:    CategoryStreak,
		Points:      1000,
		Requirement: StreakRequirement(100),
	},
	{
		Code:        "mil-puntos",
		Title:       "Mil Puntos",
		Description: "Acumula 1000 puntos",
		Rarity:      RarityRare,
		Category:    CategoryMilestone,
		Points:      100,
		Requirement: PointsRequirement(1000),
	},
	{
		Code:        "madrugador",
		Title:       "Madrugador",
		Description: "Completa 30 hábitos de rutina matutina",
		Rarity:      RarityRare,
		Category:    CategoryConsistency,
		Points:      75,
		Requirement: CategoryRequirement(shared.CategoryMorning, 30),
	},
	{
		Code:        "atleta-constante",
		Title:       "Atleta Constante",
		Description: "Completa 50 entrenamientos físicos",
		Rarity:      RarityEpic,
		Category:    CategoryConsistency,
		Points:      150,
		Requirement: CategoryRequirement(shared.CategoryPhysical, 50),
	},
	{
		Code:        "mente-curiosa",
		Title:       "Mente Curiosa",
		Description: "Completa 30 hábitos de desarrollo personal",
		Rarity:      RarityRare,
		Category:    CategoryHabits,
		Points:      75,
		Requirement: CategoryRequirement(shared.CategoryDevelopment, 30),
	},
	{
		Code:        "retador",
		Title:       "Retador",
		Description: "Completa tu primer reto",
		Rarity:      RarityCommon,
		Category:    CategoryChallenges,
		Points:      25,
		Requirement: ChallengeRequirement(1),
	},
	{
		Code:        "voz-de-la-comunidad",
		Title:       "Voz de la Comunidad",
		Description: "Participa 10 veces en el foro",
		Rarity:      RarityCommon,
		Category:    CategorySocial,
		Points:      20,
		Requirement: ForumRequirement(10),
	},
}

// DefaultCatalog возвращает каталог достижений по умолчанию.
func DefaultCatalog() *Catalog {
	return MustNewCatalog(DefaultAchievements)
}
