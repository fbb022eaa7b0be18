package services

import (
	"strings"
	"sync"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/us"
)

// CountryInfo is one selectable outlet calendar.
type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type countryCalendar struct {
	name     string
	holidays []*cal.Holiday
}

// CN uses the lunar-go adjusted-workday table; NONE means weekdays only.
var countryCalendars = map[string]countryCalendar{
	"US": {"United States", us.Holidays},
	"GB": {"United Kingdom", gb.Holidays},
	"IE": {"Ireland", ie.Holidays},
	"CA": {"Canada", ca.Holidays},
	"AU": {"Australia (NSW)", au.HolidaysNSW},
	"NZ": {"New Zealand", nz.Holidays},
	"DE": {"Germany", de.Holidays},
	"FR": {"France", fr.Holidays},
	"ES": {"Spain", es.Holidays},
	"IT": {"Italy", it.Holidays},
	"NL": {"Netherlands", nl.Holidays},
	"JP": {"Japan", jp.Holidays},
}

// HolidayService decides whether a day is a working day in an outlet's
// country, so digests are not sent on public holidays.
type HolidayService struct {
	once      sync.Once
	calendars map[string]*cal.BusinessCalendar
}

func NewHolidayService() *HolidayService {
	return &HolidayService{}
}

func (s *HolidayService) load() {
	s.calendars = make(map[string]*cal.BusinessCalendar, len(countryCalendars))
	for code, cc := range countryCalendars {
		c := cal.NewBusinessCalendar()
		c.Name = cc.name
		c.AddHoliday(cc.holidays...)
		s.calendars[code] = c
	}
}

func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	s.once.Do(s.load)

	code := strings.ToUpper(strings.TrimSpace(countryCode))
	switch code {
	case "CN":
		return isWorkdayChina(t)
	case "", "NONE":
		return !cal.IsWeekend(t)
	}
	if c, ok := s.calendars[code]; ok {
		return c.IsWorkday(t)
	}
	return !cal.IsWeekend(t)
}

// isWorkdayChina honours make-up working weekends from the lunar table.
func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	if h := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); h != nil {
		return h.IsWork()
	}
	return !cal.IsWeekend(t)
}

func (s *HolidayService) SupportedCountries() []CountryInfo {
	out := []CountryInfo{{Code: "CN", Name: "China"}}
	for _, code := range []string{"US", "GB", "IE", "CA", "AU", "NZ", "DE", "FR", "ES", "IT", "NL", "JP"} {
		out = append(out, CountryInfo{Code: code, Name: countryCalendars[code].name})
	}
	return append(out, CountryInfo{Code: "NONE", Name: "Weekdays only (Mon-Fri)"})
}
