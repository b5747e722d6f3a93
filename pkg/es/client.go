// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mind-tutor-go/internal/config"
	"mind-tutor-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// messageIndexMapping 定义了消息索引的结构。
// conversation_id 与 role 使用 keyword 以支持精确过滤，timestamp 作为排序键。
const messageIndexMapping = `{
	"mappings": {
		"properties": {
			"message_id":      { "type": "keyword" },
			"conversation_id": { "type": "keyword" },
			"user_id":         { "type": "long" },
			"role":            { "type": "keyword" },
			"content":         { "type": "text" },
			"timestamp":       { "type": "date" }
		}
	}
}`

// quizIndexMapping 定义了测验索引的结构。
// questions 作为不索引的嵌套对象整体存取。
const quizIndexMapping = `{
	"mappings": {
		"properties": {
			"quiz_id":         { "type": "keyword" },
			"conversation_id": { "type": "keyword" },
			"user_id":         { "type": "long" },
			"topic":           { "type": "text" },
			"questions":       { "type": "object", "enabled": false },
			"created_at":      { "type": "date" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端并确保消息与测验索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client

	if err := createIndexIfNotExists(esCfg.MessageIndex, messageIndexMapping); err != nil {
		return err
	}
	return createIndexIfNotExists(esCfg.QuizIndex, quizIndexMapping)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName, mapping string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 200 说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 404 说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}
