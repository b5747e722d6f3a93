package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessageRepo 是 MessageRepository 的内存实现，
// 可以按内容注入单条失败，或让读取失败若干次。
type fakeMessageRepo struct {
	mu      sync.Mutex
	docs    []model.Message
	nextID  int
	getCall int

	failCreateContent string // 内容等于该值的 Create 调用失败
	failGets          int    // 前 N 次 GetByConversation 失败；-1 表示永远失败

	getStarted chan struct{} // 非 nil 时每次 GetByConversation 开始都发信号
	getRelease chan struct{} // 非 nil 时 GetByConversation 阻塞等待放行
}

var errFakeStore = fmt.Errorf("dial tcp: %w", repository.ErrStoreUnavailable)

func (f *fakeMessageRepo) Create(_ context.Context, message model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateContent != "" && message.Content == f.failCreateContent {
		return "", errFakeStore
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	message.ID = id
	f.docs = append(f.docs, message)
	return id, nil
}

func (f *fakeMessageRepo) GetByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	if f.getStarted != nil {
		f.getStarted <- struct{}{}
	}
	if f.getRelease != nil {
		<-f.getRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCall++
	if f.failGets == -1 || f.getCall <= f.failGets {
		return nil, errFakeStore
	}

	var out []model.Message
	for _, d := range f.docs {
		if d.ConversationID == conversationID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeMessageRepo) GetByUser(_ context.Context, userID uint) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id {
			msg := d
			return &msg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessageRepo) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.docs {
		if d.ID == id {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMessageRepo) DeleteByConversation(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.docs[:0]
	for _, d := range f.docs {
		if d.ConversationID != conversationID {
			kept = append(kept, d)
		}
	}
	f.docs = kept
	return nil
}

func (f *fakeMessageRepo) count(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.docs {
		if d.ConversationID == conversationID {
			n++
		}
	}
	return n
}

// newTestSync 构造一个使用假时钟的协调器，返回记录下来的退避间隔。
func newTestSync(repo *fakeMessageRepo, cache repository.LocalCache) (*syncService, *[]time.Duration) {
	svc := NewSyncService(repo, cache, DefaultRetryPolicy).(*syncService)
	delays := &[]time.Duration{}
	svc.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return svc, delays
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 3}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 9*time.Second, p.Delay(2))
}

func TestSaveEmptyBatchIsNoOp(t *testing.T) {
	repo := &fakeMessageRepo{}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	outcomes, err := svc.Save(context.Background(), "42", 1, nil)

	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Zero(t, repo.count("42"))
}

func TestSaveIdempotent(t *testing.T) {
	repo := &fakeMessageRepo{}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())
	msg := model.Message{Role: model.RoleUser, Content: "Hi"}

	first, err := svc.Save(context.Background(), "42", 1, []model.Message{msg})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.NotEmpty(t, first[0].ID)

	// 第二次保存同样的消息：成功，但没有任何新写入
	second, err := svc.Save(context.Background(), "42", 1, []model.Message{msg})
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 1, repo.count("42"))
}

func TestSaveFiltersWelcomeMessage(t *testing.T) {
	repo := &fakeMessageRepo{}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	outcomes, err := svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleAssistant, Content: `Welcome to your testing session! Let's learn about "Algebra"`},
		{Role: model.RoleAssistant, Content: "Sure, let's start."},
	})

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "Hi", outcomes[0].Message.Content)
	assert.Equal(t, "Sure, let's start.", outcomes[1].Message.Content)
	assert.Equal(t, 2, repo.count("42"))
}

func TestSavePartialFailureIsIndependent(t *testing.T) {
	repo := &fakeMessageRepo{failCreateContent: "B"}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	outcomes, err := svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "A"},
		{Role: model.RoleUser, Content: "B"},
		{Role: model.RoleUser, Content: "C"},
	})

	// 部分失败不是整体错误
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, 2, repo.count("42"))

	// 失败的消息没有被记入去重集合，修复后重试可以写入
	repo.failCreateContent = ""
	retry, err := svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "B"},
	})
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 3, repo.count("42"))
}

func TestSaveAllFailed(t *testing.T) {
	repo := &fakeMessageRepo{failCreateContent: "A"}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	outcomes, err := svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "A"},
	})

	require.ErrorIs(t, err, ErrAllMessagesFailed)
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}

func TestSaveIndependentSignatureSets(t *testing.T) {
	// 两个协调器实例互不共享去重状态
	repo := &fakeMessageRepo{}
	svcA, _ := newTestSync(repo, repository.NewMemoryLocalCache())
	svcB, _ := newTestSync(repo, repository.NewMemoryLocalCache())
	msg := model.Message{Role: model.RoleUser, Content: "Hi"}

	_, err := svcA.Save(context.Background(), "42", 1, []model.Message{msg})
	require.NoError(t, err)
	outcomes, err := svcB.Save(context.Background(), "42", 1, []model.Message{msg})
	require.NoError(t, err)

	// B 实例没见过这个签名，照常写入；存储容忍重复写
	assert.Len(t, outcomes, 1)
	assert.Equal(t, 2, repo.count("42"))
}

func TestLoadSuccess(t *testing.T) {
	repo := &fakeMessageRepo{}
	cache := repository.NewMemoryLocalCache()
	svc, delays := newTestSync(repo, cache)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"one", "two", "three"} {
		_, err := repo.Create(context.Background(), model.Message{
			ConversationID: "42", UserID: 1, Role: model.RoleUser,
			Content: content, Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	result, err := svc.Load(context.Background(), "42")

	require.NoError(t, err)
	assert.False(t, result.Stale)
	require.Len(t, result.Messages, 3)
	assert.True(t, sort.SliceIsSorted(result.Messages, func(i, j int) bool {
		return result.Messages[i].Timestamp.Before(result.Messages[j].Timestamp)
	}))
	assert.Empty(t, *delays)

	// 成功加载后镜像被整体覆盖
	mirror := cache.Read(context.Background(), "42")
	assert.Equal(t, result.Messages, mirror)
}

func TestLoadRetriesThenSucceeds(t *testing.T) {
	repo := &fakeMessageRepo{failGets: 2}
	svc, delays := newTestSync(repo, repository.NewMemoryLocalCache())

	result, err := svc.Load(context.Background(), "42")

	require.NoError(t, err)
	assert.False(t, result.Stale)
	// 两次失败各等待一次：1s、3s
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, *delays)
}

func TestLoadFallsBackToCache(t *testing.T) {
	repo := &fakeMessageRepo{failGets: -1}
	cache := repository.NewMemoryLocalCache()
	cached := []model.Message{
		{ConversationID: "42", Role: model.RoleUser, Content: "Hi"},
		{ConversationID: "42", Role: model.RoleAssistant, Content: "Hello!"},
	}
	cache.Write(context.Background(), "42", cached)
	svc, delays := newTestSync(repo, cache)

	result, err := svc.Load(context.Background(), "42")

	require.NoError(t, err)
	assert.True(t, result.Stale)
	// 镜像内容原样返回：不重排、不去重、不丢失
	assert.Equal(t, cached, result.Messages)
	// 三次尝试之间退避两次
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, *delays)
}

func TestLoadFailsWithoutCache(t *testing.T) {
	repo := &fakeMessageRepo{failGets: -1}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	result, err := svc.Load(context.Background(), "42")

	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.Empty(t, result.Messages)
}

func TestLoadEmptyConversationIsNotAnError(t *testing.T) {
	repo := &fakeMessageRepo{}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	result, err := svc.Load(context.Background(), "never-seen")

	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Empty(t, result.Messages)
}

func TestLoadCancelDuringBackoff(t *testing.T) {
	repo := &fakeMessageRepo{failGets: -1}
	svc := NewSyncService(repo, repository.NewMemoryLocalCache(), DefaultRetryPolicy).(*syncService)
	svc.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := svc.Load(context.Background(), "42")

	// 取消后放弃剩余重试，也不降级到镜像
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, repo.getCall)
}

func TestLoadCoalescesConcurrentRequests(t *testing.T) {
	repo := &fakeMessageRepo{
		getStarted: make(chan struct{}, 2),
		getRelease: make(chan struct{}),
	}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	results := make(chan error, 2)
	go func() {
		_, err := svc.Load(context.Background(), "42")
		results <- err
	}()

	// 等第一个请求进入存储调用后再发起第二个，确保两者确实并发
	<-repo.getStarted
	go func() {
		_, err := svc.Load(context.Background(), "42")
		results <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(repo.getRelease)
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	assert.Equal(t, 1, repo.getCall)

	// 后续的全新 Load 重新发起存储查询
	_, err := svc.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.getCall)
}

func TestSaveRefreshesMirror(t *testing.T) {
	repo := &fakeMessageRepo{}
	cache := repository.NewMemoryLocalCache()
	svc, _ := newTestSync(repo, cache)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "later", Timestamp: base.Add(time.Minute)},
	})
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "earlier", Timestamp: base},
	})
	require.NoError(t, err)

	mirror := cache.Read(context.Background(), "42")
	require.Len(t, mirror, 2)
	assert.Equal(t, "earlier", mirror[0].Content)
	assert.Equal(t, "later", mirror[1].Content)
}

func TestSaveErrorsAreWrapped(t *testing.T) {
	repo := &fakeMessageRepo{failCreateContent: "A"}
	svc, _ := newTestSync(repo, repository.NewMemoryLocalCache())

	outcomes, err := svc.Save(context.Background(), "42", 1, []model.Message{
		{Role: model.RoleUser, Content: "A"},
	})

	require.Error(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, errors.Is(outcomes[0].Err, repository.ErrStoreUnavailable))
}
