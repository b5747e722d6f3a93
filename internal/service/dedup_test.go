package service

import (
	"testing"

	"mind-tutor-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWelcomeMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"标准欢迎语", `Welcome to your chat session! Let's learn about "Algebra"`, true},
		{"任意模式与主题", `Welcome to your testing session! Let's learn about "Go 并发"`, true},
		{"空主题", `Welcome to your quiz session! Let's learn about ""`, true},
		{"生成的欢迎语", WelcomeMessage("mindmap", "Biology"), true},
		{"普通回答", "Sure, let's start.", false},
		{"前缀相似但缺少引号", "Welcome to your chat session! Let's learn about Algebra", false},
		{"欢迎语内嵌在长文本中", `Note: Welcome to your chat session! Let's learn about "X" was shown`, false},
		{"空内容", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWelcomeMessage(tt.content))
		})
	}
}

func TestFilterDropsDoNotPersist(t *testing.T) {
	seen := NewSignatureSet()
	candidates := []model.Message{
		{Role: model.RoleUser, Content: "Hi", DoNotPersist: true},
		{Role: model.RoleUser, Content: "Hello"},
	}

	got := FilterForPersistence("42", candidates, seen)

	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].Content)
}

func TestFilterDropsWelcomeTemplate(t *testing.T) {
	seen := NewSignatureSet()
	welcome := `Welcome to your testing session! Let's learn about "Algebra"`

	// doNotPersist 与否都不能让欢迎语落库
	for _, flag := range []bool{true, false} {
		got := FilterForPersistence("42", []model.Message{
			{Role: model.RoleAssistant, Content: welcome, DoNotPersist: flag},
		}, seen)
		assert.Empty(t, got, "doNotPersist=%v", flag)
	}

	// 欢迎语模板只针对 assistant 角色
	got := FilterForPersistence("42", []model.Message{
		{Role: model.RoleUser, Content: welcome},
	}, seen)
	assert.Len(t, got, 1)
}

func TestFilterDropsAlreadyPersistedSignatures(t *testing.T) {
	seen := NewSignatureSet()
	seen.Add(Signature{ConversationID: "42", Role: model.RoleUser, Content: "Hi"})

	got := FilterForPersistence("42", []model.Message{
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleUser, Content: "Hi there"},
	}, seen)

	require.Len(t, got, 1)
	assert.Equal(t, "Hi there", got[0].Content)
}

func TestFilterSignatureIsExact(t *testing.T) {
	// 空白与大小写敏感：相似但不相同的内容不会被误杀
	seen := NewSignatureSet()
	seen.Add(Signature{ConversationID: "42", Role: model.RoleUser, Content: "Hi"})

	got := FilterForPersistence("42", []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleUser, Content: "Hi "},
		{Role: model.RoleUser, Content: "Hi"},
	}, seen)

	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "Hi ", got[1].Content)
}

func TestFilterDeduplicatesWithinBatch(t *testing.T) {
	seen := NewSignatureSet()

	got := FilterForPersistence("42", []model.Message{
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleAssistant, Content: "Hi"},
	}, seen)

	// 同批次内相同签名只保留第一条；角色不同则签名不同
	require.Len(t, got, 2)
	assert.Equal(t, model.RoleUser, got[0].Role)
	assert.Equal(t, model.RoleAssistant, got[1].Role)
}

func TestFilterDoesNotMutatePersistedSet(t *testing.T) {
	seen := NewSignatureSet()

	FilterForPersistence("42", []model.Message{
		{Role: model.RoleUser, Content: "Hi"},
	}, seen)

	// 签名只在确认写入成功后由协调器记录
	assert.False(t, seen.Contains(Signature{ConversationID: "42", Role: model.RoleUser, Content: "Hi"}))
}

func TestFilterScopesSignatureToConversation(t *testing.T) {
	seen := NewSignatureSet()
	seen.Add(Signature{ConversationID: "42", Role: model.RoleUser, Content: "Hi"})

	// 同样的内容在另一个会话中不算重复
	got := FilterForPersistence("43", []model.Message{
		{Role: model.RoleUser, Content: "Hi"},
	}, seen)

	require.Len(t, got, 1)
	assert.Equal(t, "43", got[0].ConversationID)
}
