package hooks

import (
	"errors"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// ErrAlreadyClaimed is returned by ClaimDailyReward when today's reward
// was already collected.
var ErrAlreadyClaimed = errors.New("hooks: daily reward already claimed")

// dailyRewards is indexed by streak day (1-7), grounded on
// original_source/include/login_rewards.h.
var dailyRewards = [8]float64{
	0,  // unused, streak days are 1-indexed
	5.0,
	8.0,
	12.0,
	15.0,
	20.0,
	25.0,
	50.0,
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TouchLoginStreak rolls a user's login streak forward on login and
// records today as the last-login date, without granting any reward:
// a login on the day after the previous one advances the streak
// (wrapping from 7 back to 1), a longer gap resets it to 1, and a
// repeat login on the same day leaves it unchanged. Claiming a reward
// is a separate, idempotent operation.
func (h *Hooks) TouchLoginStreak(userID int64) error {
	streak, err := h.store.GetLoginStreak(userID)
	if err != nil {
		return err
	}
	today := midnight(time.Now())
	if !streak.LastLoginDate.IsZero() {
		switch days := int(today.Sub(midnight(streak.LastLoginDate)).Hours() / 24); {
		case days == 1:
			streak.CurrentStreak++
			if streak.CurrentStreak > 7 {
				streak.CurrentStreak = 1
			}
		case days > 1:
			streak.CurrentStreak = 1
		}
	}
	if streak.CurrentStreak == 0 {
		streak.CurrentStreak = 1
	}
	streak.LastLoginDate = today
	return h.store.SaveLoginStreak(streak)
}

// ClaimDailyReward credits the day's cash reward for a user's current
// login streak, returning the reward amount and the streak day it
// corresponds to. If the last recorded login is older than today, the
// streak is first advanced (or reset) the same way a login does.
// Calendar days are compared in UTC.
func (h *Hooks) ClaimDailyReward(userID int64) (reward float64, streakDay int, err error) {
	streak, err := h.store.GetLoginStreak(userID)
	if err != nil {
		return 0, 0, err
	}

	today := midnight(time.Now())
	if !streak.LastRewardDate.IsZero() && streak.LastRewardDate.Equal(today) {
		return 0, 0, ErrAlreadyClaimed
	}

	daysDiff := 0
	if !streak.LastLoginDate.IsZero() {
		daysDiff = int(today.Sub(streak.LastLoginDate).Hours() / 24)
	} else {
		daysDiff = -1 // sentinel: never logged in before
	}

	switch {
	case daysDiff == 1:
		streak.CurrentStreak++
		if streak.CurrentStreak > 7 {
			streak.CurrentStreak = 1
		}
	case daysDiff > 1:
		streak.CurrentStreak = 1
	case streak.CurrentStreak == 0:
		streak.CurrentStreak = 1
	}

	day := streak.CurrentStreak
	if day < 1 || day > 7 {
		day = 1
		streak.CurrentStreak = 1
	}
	reward = dailyRewards[day]

	tx, err := h.store.DB().Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	if err := store.AdjustBalance(tx, userID, reward); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	streak.LastLoginDate = today
	streak.LastRewardDate = today
	if err := h.store.SaveLoginStreak(streak); err != nil {
		return 0, 0, err
	}

	return reward, day, nil
}
