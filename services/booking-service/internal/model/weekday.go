package model

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is the fixed token used in storage and in API payloads.
type Weekday string

const (
	Domingo Weekday = "DOMINGO"
	Segunda Weekday = "SEGUNDA"
	Terca   Weekday = "TERCA"
	Quarta  Weekday = "QUARTA"
	Quinta  Weekday = "QUINTA"
	Sexta   Weekday = "SEXTA"
	Sabado  Weekday = "SABADO"
)

var weekdays = [7]Weekday{Domingo, Segunda, Terca, Quarta, Quinta, Sexta, Sabado}

func WeekdayOf(t time.Time) Weekday {
	return weekdays[t.Weekday()]
}

func ParseWeekday(raw string) (Weekday, error) {
	w := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range weekdays {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown weekday %q", raw)
}

// Index returns the Sunday-based position (0..6), matching time.Weekday.
func (w Weekday) Index() int {
	for i, known := range weekdays {
		if w == known {
			return i
		}
	}
	return -1
}
