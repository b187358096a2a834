package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blockso/blockso/internal/models"
	"github.com/blockso/blockso/internal/types"
)

type fakeProfileStore struct {
	nextID   int64
	profiles map[string]*models.Profile
	err      error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]*models.Profile)}
}

func (s *fakeProfileStore) GetOrCreate(ctx context.Context, address string) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.profiles[address]; ok {
		return p, nil
	}
	s.nextID++
	p := &models.Profile{ID: s.nextID, Address: address}
	s.profiles[address] = p
	return p, nil
}

type postKey struct {
	authorID int64
	refTxID  int64
}

type fakePostStore struct {
	posts map[postKey]*models.Post
	err   error
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{posts: make(map[postKey]*models.Post)}
}

func (s *fakePostStore) GetOrCreateDerived(ctx context.Context, post *models.Post) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	key := postKey{authorID: post.AuthorID, refTxID: *post.RefTxID}
	if existing, ok := s.posts[key]; ok {
		post.ID = existing.ID
		return false, nil
	}
	post.ID = int64(len(s.posts) + 1)
	s.posts[key] = post
	return true, nil
}

type fakeNotificationStore struct {
	created []*models.Notification
	err     error
}

func (s *fakeNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, n)
	return nil
}

func testTransaction(from, to string) *models.Transaction {
	return &models.Transaction{
		ID:            42,
		ChainID:       types.ChainEthereum,
		TxHash:        "0xabc123",
		BlockSignedAt: time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC),
		Successful:    true,
		FromAddress:   from,
		ToAddress:     to,
		Value:         "1000000000000000000",
	}
}

const (
	addrSender   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	addrReceiver = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func TestDeriveFromHistory_SenderBecomesAuthor(t *testing.T) {
	profiles := newFakeProfileStore()
	posts := newFakePostStore()
	notifications := &fakeNotificationStore{}
	deriver := NewDeriver(profiles, posts, notifications)

	tx := testTransaction(addrSender, addrReceiver)
	post, err := deriver.DeriveFromHistory(context.Background(), tx, nil, nil, addrSender)
	if err != nil {
		t.Fatalf("DeriveFromHistory() error = %v", err)
	}
	if post == nil {
		t.Fatal("DeriveFromHistory() returned no post for the transaction sender")
	}
	if post.RefTxID == nil || *post.RefTxID != tx.ID {
		t.Errorf("post.RefTxID = %v, want %d", post.RefTxID, tx.ID)
	}
	if !post.Created.Equal(tx.BlockSignedAt) {
		t.Errorf("post.Created = %v, want block time %v", post.Created, tx.BlockSignedAt)
	}
	if len(notifications.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(notifications.created))
	}
	if notifications.created[0].Event != types.EventMentionedInPost {
		t.Errorf("notification event = %v, want %v", notifications.created[0].Event, types.EventMentionedInPost)
	}
}

func TestDeriveFromHistory_ReceiverDoesNotQualify(t *testing.T) {
	deriver := NewDeriver(newFakeProfileStore(), newFakePostStore(), &fakeNotificationStore{})

	tx := testTransaction(addrSender, addrReceiver)
	post, err := deriver.DeriveFromHistory(context.Background(), tx, nil, nil, addrReceiver)
	if err != nil {
		t.Fatalf("DeriveFromHistory() error = %v", err)
	}
	if post != nil {
		t.Errorf("DeriveFromHistory() created a post for a non-participating address")
	}
}

func TestDeriveFromHistory_TokenTransferSenderQualifies(t *testing.T) {
	deriver := NewDeriver(newFakeProfileStore(), newFakePostStore(), &fakeNotificationStore{})

	// The requested address is not the tx sender but did send tokens in it.
	tx := testTransaction(addrReceiver, "0x1111111111111111111111111111111111111111")
	erc20 := []*models.ERC20Transfer{
		{
			TxID:           tx.ID,
			FromAddress:    strings.ToLower(addrSender),
			ToAddress:      addrReceiver,
			Amount:         "2500000000000000000",
			Decimals:       18,
			ContractTicker: "DAI",
		},
	}

	post, err := deriver.DeriveFromHistory(context.Background(), tx, erc20, nil, addrSender)
	if err != nil {
		t.Fatalf("DeriveFromHistory() error = %v", err)
	}
	if post == nil {
		t.Fatal("DeriveFromHistory() returned no post for a token transfer sender")
	}
	if post.Text != "Sent 2.5 DAI" {
		t.Errorf("post.Text = %q, want %q", post.Text, "Sent 2.5 DAI")
	}
}

func TestDeriveFromHistory_ZeroAddressNeverAuthors(t *testing.T) {
	deriver := NewDeriver(newFakeProfileStore(), newFakePostStore(), &fakeNotificationStore{})

	tx := testTransaction(types.ZeroAddress, addrReceiver)
	post, err := deriver.DeriveFromHistory(context.Background(), tx, nil, nil, types.ZeroAddress)
	if err != nil {
		t.Fatalf("DeriveFromHistory() error = %v", err)
	}
	if post != nil {
		t.Error("DeriveFromHistory() created a post authored by the zero address")
	}
}

func TestDeriveFromHistory_RepeatDerivationIsIdempotent(t *testing.T) {
	profiles := newFakeProfileStore()
	posts := newFakePostStore()
	notifications := &fakeNotificationStore{}
	deriver := NewDeriver(profiles, posts, notifications)

	tx := testTransaction(addrSender, addrReceiver)
	for i := 0; i < 3; i++ {
		if _, err := deriver.DeriveFromHistory(context.Background(), tx, nil, nil, addrSender); err != nil {
			t.Fatalf("DeriveFromHistory() run %d error = %v", i, err)
		}
	}

	if len(posts.posts) != 1 {
		t.Errorf("stored %d posts, want 1", len(posts.posts))
	}
	if len(notifications.created) != 1 {
		t.Errorf("created %d notifications, want 1; repeats must not re-notify", len(notifications.created))
	}
}

func TestDeriveFromActivity_BothParticipantsGetPosts(t *testing.T) {
	profiles := newFakeProfileStore()
	posts := newFakePostStore()
	deriver := NewDeriver(profiles, posts, &fakeNotificationStore{})

	tx := testTransaction(addrSender, addrReceiver)
	err := deriver.DeriveFromActivity(context.Background(), tx, []string{tx.FromAddress, tx.ToAddress})
	if err != nil {
		t.Fatalf("DeriveFromActivity() error = %v", err)
	}
	if len(posts.posts) != 2 {
		t.Errorf("stored %d posts, want one per participant", len(posts.posts))
	}
}

func TestDeriveFromActivity_SkipsZeroAddress(t *testing.T) {
	posts := newFakePostStore()
	deriver := NewDeriver(newFakeProfileStore(), posts, &fakeNotificationStore{})

	tx := testTransaction(addrSender, types.ZeroAddress)
	err := deriver.DeriveFromActivity(context.Background(), tx, []string{tx.FromAddress, tx.ToAddress})
	if err != nil {
		t.Fatalf("DeriveFromActivity() error = %v", err)
	}
	if len(posts.posts) != 1 {
		t.Errorf("stored %d posts, want 1 (zero address skipped)", len(posts.posts))
	}
}

func TestDeriveFromActivity_FailureDoesNotStopOthers(t *testing.T) {
	profiles := newFakeProfileStore()
	posts := newFakePostStore()
	deriver := NewDeriver(profiles, posts, &fakeNotificationStore{})

	tx := testTransaction(addrSender, addrReceiver)
	err := deriver.DeriveFromActivity(context.Background(), tx, []string{"bogus", addrReceiver})
	if err == nil {
		t.Fatal("DeriveFromActivity() error = nil, want the participant failure reported")
	}
	if len(posts.posts) != 1 {
		t.Errorf("stored %d posts, want the valid participant's post", len(posts.posts))
	}
}

func TestCreatePostSurvivesNotificationFailure(t *testing.T) {
	profiles := newFakeProfileStore()
	posts := newFakePostStore()
	notifications := &fakeNotificationStore{err: errors.New("notification store down")}
	deriver := NewDeriver(profiles, posts, notifications)

	tx := testTransaction(addrSender, addrReceiver)
	post, err := deriver.DeriveFromHistory(context.Background(), tx, nil, nil, addrSender)
	if err != nil {
		t.Fatalf("DeriveFromHistory() error = %v", err)
	}
	if post == nil {
		t.Fatal("post was not created despite only the notification failing")
	}
}

func TestFormatTokenAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     string
	}{
		{
			name:     "whole token",
			amount:   "1000000000000000000",
			decimals: 18,
			want:     "1",
		},
		{
			name:     "fractional amount trims trailing zeros",
			amount:   "2500000000000000000",
			decimals: 18,
			want:     "2.5",
		},
		{
			name:     "amount below one token keeps leading zeros",
			amount:   "1230",
			decimals: 6,
			want:     "0.00123",
		},
		{
			name:     "zero decimals",
			amount:   "12345",
			decimals: 0,
			want:     "12345",
		},
		{
			name:     "zero amount",
			amount:   "0",
			decimals: 18,
			want:     "0",
		},
		{
			name:     "six decimal stablecoin",
			amount:   "1500000",
			decimals: 6,
			want:     "1.5",
		},
		{
			name:     "invalid amount passes through",
			amount:   "not-a-number",
			decimals: 18,
			want:     "not-a-number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTokenAmount(tt.amount, tt.decimals)
			if got != tt.want {
				t.Errorf("FormatTokenAmount(%q, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}
