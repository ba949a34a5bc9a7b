package catalog

// DefaultCities is substituted when no city data could be loaded.
func DefaultCities() []City {
	return []City{
		{Name: "София", Neighborhoods: []string{"Център", "Младост", "Люлин", "Надежда"}},
		{Name: "Пловдив", Neighborhoods: []string{"Център", "Капана", "Гладно поле", "Западен"}},
		{Name: "Варна", Neighborhoods: []string{"Център", "Морска гара", "Младост", "Бриз"}},
		{Name: "Бургас", Neighborhoods: []string{"Море", "Песчаница", "Разград"}},
		{Name: "Благоевград", Neighborhoods: []string{"Артизан", "Варошин"}},
		{Name: "Велико Търново", Neighborhoods: []string{"Младост", "Парк"}},
		{Name: "Русе", Neighborhoods: []string{"Алеи Възраждане", "Възраждане"}},
		{Name: "Плевен", Neighborhoods: []string{"Център", "Младост"}},
		{Name: "Стара Загора", Neighborhoods: []string{"Център", "Младост"}},
	}
}

// DefaultCriteria are the labels of the ten neighborhood criteria.
func DefaultCriteria() []Criterion {
	return []Criterion{
		{Key: "location", Label: "Локация"},
		{Key: "cleanliness", Label: "Чистота"},
		{Key: "transport", Label: "Транспорт"},
		{Key: "buildings", Label: "Сграден фонд"},
		{Key: "security", Label: "Сигурност"},
		{Key: "infrastructure", Label: "Инфраструктура"},
		{Key: "education", Label: "Училища и ДГ"},
		{Key: "healthcare", Label: "Здравеопазване"},
		{Key: "shopping", Label: "Магазини"},
		{Key: "entertainment", Label: "Забавления"},
	}
}

// DefaultSpecialties is the fallback medical specialty list.
func DefaultSpecialties() []string {
	return []string{
		"Общопрактикуващ лекар",
		"Педиатър",
		"Кардиолог",
		"Невролог",
		"Дерматолог",
		"Гинеколог",
		"Офталмолог",
		"УНГ",
		"Ортопед",
		"Ендокринолог",
		"Гастроентеролог",
		"Психиатър",
		"Уролог",
		"Хирург",
	}
}
