package hooks

import (
	"errors"
	"os"
	"testing"

	"github.com/klingon-exchange/klingon-v2/internal/store"
)

func newTestHooks(t *testing.T) (*Hooks, int64) {
	t.Helper()
	dir, err := os.MkdirTemp("", "klingoserver-hooks-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	userID, err := s.CreateUser("eve", "hash", 100.0)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	return New(s), userID
}

func TestBumpQuestCompletesAtTarget(t *testing.T) {
	h, userID := newTestHooks(t)

	var q *store.Quest
	var err error
	for i := 0; i < QuestTargetLuckyGambler; i++ {
		q, err = h.BumpQuest(userID, QuestLuckyGambler, 1)
		if err != nil {
			t.Fatalf("BumpQuest() error = %v", err)
		}
	}
	if !q.Completed {
		t.Error("expected quest completed after reaching target")
	}
}

func TestBumpQuestUnknownKey(t *testing.T) {
	h, userID := newTestHooks(t)

	if _, err := h.BumpQuest(userID, "not_a_real_quest", 1); err == nil {
		t.Error("expected error for unknown quest key")
	}
}

func TestUnlockAchievementOnlyOnce(t *testing.T) {
	h, userID := newTestHooks(t)

	first, err := h.UnlockAchievement(userID, AchievementFirstKnife)
	if err != nil {
		t.Fatalf("UnlockAchievement() error = %v", err)
	}
	if !first {
		t.Error("expected first unlock to report true")
	}

	second, err := h.UnlockAchievement(userID, AchievementFirstKnife)
	if err != nil {
		t.Fatalf("UnlockAchievement() error = %v", err)
	}
	if second {
		t.Error("expected repeat unlock to report false")
	}
}

func TestClaimDailyRewardFirstTimeIsDayOne(t *testing.T) {
	h, userID := newTestHooks(t)

	reward, day, err := h.ClaimDailyReward(userID)
	if err != nil {
		t.Fatalf("ClaimDailyReward() error = %v", err)
	}
	if day != 1 {
		t.Errorf("expected streak day 1, got %d", day)
	}
	if reward != 5.0 {
		t.Errorf("expected day 1 reward 5.0, got %v", reward)
	}
}

func TestClaimDailyRewardTwiceSameDayFails(t *testing.T) {
	h, userID := newTestHooks(t)

	if _, _, err := h.ClaimDailyReward(userID); err != nil {
		t.Fatalf("ClaimDailyReward() error = %v", err)
	}
	if _, _, err := h.ClaimDailyReward(userID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestFileReportTriggersWarnAtThreshold(t *testing.T) {
	h, userID := newTestHooks(t)

	reporterID, err := h.store.CreateUser("reporter", "hash", 100.0)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	var triggered bool
	for i := 0; i < ReportWarnThreshold; i++ {
		triggered, err = h.FileReport(reporterID, userID, "spam")
		if err != nil {
			t.Fatalf("FileReport() error = %v", err)
		}
	}
	if !triggered {
		t.Error("expected warning to trigger at threshold report count")
	}
}

func TestClaimQuestRewardRequiresCompletion(t *testing.T) {
	h, userID := newTestHooks(t)

	if _, err := h.ClaimQuestReward(userID, QuestFirstSteps); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict claiming an incomplete quest, got %v", err)
	}

	for i := 0; i < QuestTargetFirstSteps; i++ {
		if _, err := h.BumpQuest(userID, QuestFirstSteps, 1); err != nil {
			t.Fatalf("BumpQuest() error = %v", err)
		}
	}

	reward, err := h.ClaimQuestReward(userID, QuestFirstSteps)
	if err != nil {
		t.Fatalf("ClaimQuestReward() error = %v", err)
	}
	if reward != QuestRewardFirstSteps {
		t.Errorf("expected reward %v, got %v", QuestRewardFirstSteps, reward)
	}

	user, err := h.store.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Balance != 100.0+QuestRewardFirstSteps {
		t.Errorf("expected balance credited with reward, got %v", user.Balance)
	}

	if _, err := h.ClaimQuestReward(userID, QuestFirstSteps); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on double claim, got %v", err)
	}
}

func TestClaimAchievementRewardOnlyOnce(t *testing.T) {
	h, userID := newTestHooks(t)

	if _, err := h.UnlockAchievement(userID, AchievementFirstTrade); err != nil {
		t.Fatalf("UnlockAchievement() error = %v", err)
	}

	reward, err := h.ClaimAchievementReward(userID, AchievementFirstTrade)
	if err != nil {
		t.Fatalf("ClaimAchievementReward() error = %v", err)
	}
	if reward != AchievementRewardFirstTrade {
		t.Errorf("expected reward %v, got %v", AchievementRewardFirstTrade, reward)
	}

	if _, err := h.ClaimAchievementReward(userID, AchievementFirstTrade); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on double claim, got %v", err)
	}
}

func TestSaveAndRecentChat(t *testing.T) {
	h, userID := newTestHooks(t)

	if err := h.SaveChatMessage(userID, "eve", "hello"); err != nil {
		t.Fatalf("SaveChatMessage() error = %v", err)
	}
	if err := h.SaveSystemMessage("server restarting soon"); err != nil {
		t.Fatalf("SaveSystemMessage() error = %v", err)
	}

	msgs, err := h.RecentChat(10)
	if err != nil {
		t.Fatalf("RecentChat() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Message != "hello" {
		t.Errorf("expected oldest-first ordering, got %q first", msgs[0].Message)
	}
}
