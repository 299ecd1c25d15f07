package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOf(t *testing.T) {
	got := DateOf(time.Date(2024, 3, 1, 23, 59, 58, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	// 非UTCはUTCの暦日に正規化される
	jst := time.FixedZone("JST", 9*3600)
	got = DateOf(time.Date(2024, 3, 2, 8, 0, 0, 0, jst))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, 1, DaysBetween(a, a.AddDate(0, 0, 1)))
	assert.Equal(t, 31, DaysBetween(a, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -5, DaysBetween(a, a.AddDate(0, 0, -5)))

	// 時刻は無視して暦日で数える
	late := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	early := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(late, early))
}

func TestPage_Normalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, "desc", p.Order)

	p = Page{Limit: 5000, Offset: -3, Order: "ASC"}.Normalize()
	assert.Equal(t, 1000, p.Limit)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, "desc", p.Order, "only lowercase asc is honored")

	p = Page{Limit: 10, Offset: 20, Order: "asc"}.Normalize()
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 20, p.Offset)
	assert.Equal(t, "asc", p.Order)
}
