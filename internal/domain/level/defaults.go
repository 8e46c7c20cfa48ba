package level

// DefaultLevels - таблица уровней по умолчанию.
var DefaultLevels = []Config{
	{Level: 1, Name: "Principiante", Emoji: "🌱", RequiredXP: 0, Color: "#9CA3AF"},
	{Level: 2, Name: "Aprendiz", Emoji: "🌿", RequiredXP: 100, Color: "#10B981",
		Benefits: []string{"Insignia de perfil"}},
	{Level: 3, Name: "Constante", Emoji: "🔥", RequiredXP: 250, Color: "#F59E0B",
		Benefits: []string{"Estadísticas semanales"}},
	{Level: 4, Name: "Disciplinado", Emoji: "⚡", RequiredXP: 500, Color: "#3B82F6",
		Benefits: []string{"Hábitos ilimitados"}},
	{Level: 5, Name: "Guerrero", Emoji: "⚔️", RequiredXP: 1000, Color: "#6366F1",
		Benefits: []string{"Retos exclusivos"}},
	{Level: 6, Name: "Maestro", Emoji: "🥋", RequiredXP: 2000, Color: "#8B5CF6"},
	{Level: 7, Name: "Sabio", Emoji: "🦉", RequiredXP: 3500, Color: "#EC4899"},
	{Level: 8, Name: "Campeón", Emoji: "🏆", RequiredXP: 5500, Color: "#EF4444"},
	{Level: 9, Name: "Leyenda", Emoji: "👑", RequiredXP: 8000, Color: "#D97706"},
	{Level: 10, Name: "Titán", Emoji: "💎", RequiredXP: 12000, Color: "#0EA5E9",
		Benefits: []string{"Mentoría de la comunidad"}},
}

// DefaultTable возвращает таблицу уровней по умолчанию.
func DefaultTable() *Table {
	return MustNewTable(DefaultLevels)
}
