package markethours

import "time"

type monthDay struct {
	month time.Month
	day   int
}

// 2026 exchange holidays that fall on weekdays. Dates marked tentative follow
// the lunar calendar and are confirmed by the exchanges late in the prior year.
var holidays2026 = map[Code][]monthDay{
	CN: {
		{time.January, 1}, {time.January, 2}, // New Year
		{time.February, 16}, {time.February, 17}, {time.February, 18}, // Spring Festival (tentative)
		{time.February, 19}, {time.February, 20}, {time.February, 23},
		{time.April, 6},                             // Qingming
		{time.May, 1}, {time.May, 4}, {time.May, 5}, // Labour Day
		{time.June, 19},                                         // Dragon Boat (tentative)
		{time.September, 25},                                    // Mid-Autumn (tentative)
		{time.October, 1}, {time.October, 2}, {time.October, 5}, // National Day
		{time.October, 6}, {time.October, 7},
	},
	HK: {
		{time.January, 1},
		{time.February, 17}, {time.February, 18}, {time.February, 19}, // Lunar New Year (tentative)
		{time.April, 3}, {time.April, 6}, {time.April, 7}, // Easter, Ching Ming
		{time.May, 1},
		{time.May, 25}, // Buddha's Birthday (tentative)
		{time.June, 19},
		{time.July, 1},
		{time.October, 1},
		{time.October, 19}, // Chung Yeung (tentative)
		{time.December, 25},
	},
	US: {
		{time.January, 1},
		{time.January, 19},  // MLK Day
		{time.February, 16}, // Presidents' Day
		{time.April, 3},     // Good Friday
		{time.May, 25},      // Memorial Day
		{time.June, 19},     // Juneteenth
		{time.July, 3},      // Independence Day (observed)
		{time.September, 7}, // Labor Day
		{time.November, 26}, // Thanksgiving
		{time.December, 25},
	},
}

// pre-compute for fast lookup
var holidaySet map[Code]map[string]bool

func init() {
	holidaySet = make(map[Code]map[string]bool, len(holidays2026))
	for code, days := range holidays2026 {
		set := make(map[string]bool, len(days))
		for _, d := range days {
			set[dateKey(2026, d.month, d.day)] = true
		}
		holidaySet[code] = set
	}
}

// IsHoliday returns true if the exchange-local date of t is a listed holiday.
func (m Market) IsHoliday(t time.Time) bool {
	lt := t.In(m.Location)
	return holidaySet[m.Code][dateKey(lt.Year(), lt.Month(), lt.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
