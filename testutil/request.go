// Package testutil 提供测试辅助工具
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/gin-gonic/gin"
)

// RequestBuilder HTTP 请求构建器
type RequestBuilder struct {
	method  string
	path    string
	body    interface{}
	headers map[string]string
	query   map[string]string
}

// NewRequest 创建请求构建器
func NewRequest(method, path string) *RequestBuilder {
	return &RequestBuilder{
		method:  method,
		path:    path,
		headers: make(map[string]string),
		query:   make(map[string]string),
	}
}

// WithJSON 设置 JSON Body
func (rb *RequestBuilder) WithJSON(body interface{}) *RequestBuilder {
	rb.body = body
	return rb
}

// WithHeader 设置 Header
func (rb *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	rb.headers[key] = value
	return rb
}

// WithQuery 设置 Query 参数
func (rb *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	rb.query[key] = value
	return rb
}

// Do 执行请求
func (rb *RequestBuilder) Do(engine *gin.Engine) *ResponseHelper {
	target := rb.path
	if len(rb.query) > 0 {
		values := url.Values{}
		for k, v := range rb.query {
			values.Set(k, v)
		}
		target += "?" + values.Encode()
	}

	var bodyReader *bytes.Reader
	if rb.body != nil {
		data, _ := json.Marshal(rb.body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(rb.method, target, bodyReader)
	if rb.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range rb.headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return &ResponseHelper{Recorder: w}
}

// ResponseHelper 响应断言辅助
type ResponseHelper struct {
	Recorder *httptest.ResponseRecorder
}

// Code 响应状态码
func (rh *ResponseHelper) Code() int {
	return rh.Recorder.Code
}

// Body 响应体字符串
func (rh *ResponseHelper) Body() string {
	return rh.Recorder.Body.String()
}

// JSON 反序列化响应体
func (rh *ResponseHelper) JSON(target interface{}) error {
	return json.Unmarshal(rh.Recorder.Body.Bytes(), target)
}

// IsOK 是否为 200
func (rh *ResponseHelper) IsOK() bool {
	return rh.Recorder.Code == http.StatusOK
}
