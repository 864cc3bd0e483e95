package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewClient 测试创建基础客户端
func TestNewClient(t *testing.T) {
	// 测试默认配置
	client := NewClient()
	if client == nil {
		t.Fatal("NewClient() 返回 nil")
	}

	if client.timeout != 30*time.Second {
		t.Errorf("默认超时时间应为30秒，实际为 %v", client.timeout)
	}

	if client.headers["User-Agent"] != "DesignFlow/1.0" {
		t.Errorf("默认User-Agent不正确: %s", client.headers["User-Agent"])
	}

	// 测试自定义配置
	customClient := NewClient(
		WithTimeout(10*time.Second),
		WithHeaders(map[string]string{"X-Custom": "value"}),
		WithRetries(3),
	)

	if customClient.timeout != 10*time.Second {
		t.Errorf("自定义超时时间应为10秒，实际为 %v", customClient.timeout)
	}

	if customClient.headers["X-Custom"] != "value" {
		t.Errorf("自定义头未设置")
	}

	if customClient.retries != 3 {
		t.Errorf("重试次数应为3，实际为 %d", customClient.retries)
	}
}

// TestClientGetJSON 测试GetJSON方法
func TestClientGetJSON(t *testing.T) {
	// 创建测试服务器
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("期望GET请求，实际为 %s", r.Method)
		}

		// 返回JSON响应
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "success",
			"status":  "ok",
		})
	}))
	defer server.Close()

	// 创建客户端
	client := NewClient()

	// 执行请求
	var result map[string]string
	err := client.GetJSON(context.Background(), server.URL, &result)
	if err != nil {
		t.Fatalf("GetJSON() 错误: %v", err)
	}

	// 验证结果
	if result["message"] != "success" {
		t.Errorf("期望 message='success'，实际为 '%s'", result["message"])
	}

	if result["status"] != "ok" {
		t.Errorf("期望 status='ok'，实际为 '%s'", result["status"])
	}
}

// TestClientPostJSON 测试PostJSON方法
func TestClientPostJSON(t *testing.T) {
	// 创建测试服务器
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("期望POST请求，实际为 %s", r.Method)
		}

		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("期望Content-Type为application/json")
		}

		// 解析请求体
		var reqBody map[string]string
		json.NewDecoder(r.Body).Decode(&reqBody)

		// 返回响应
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"echo": reqBody["message"],
		})
	}))
	defer server.Close()

	// 创建客户端
	client := NewClient()

	// 执行请求
	reqBody := map[string]string{"message": "hello"}
	var result map[string]string
	err := client.PostJSON(context.Background(), server.URL, reqBody, &result)
	if err != nil {
		t.Fatalf("PostJSON() 错误: %v", err)
	}

	// 验证结果
	if result["echo"] != "hello" {
		t.Errorf("期望 echo='hello'，实际为 '%s'", result["echo"])
	}
}
