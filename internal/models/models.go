// Package models provides API Gateway response helpers.
package models

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// CORSAllowHeaders lists the request headers browsers may send.
const CORSAllowHeaders = "authorization, x-client-info, apikey, content-type"

// APIResponse builds a standard API Gateway Lambda proxy response with CORS headers.
func APIResponse(statusCode int, body any) (events.APIGatewayProxyResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    corsHeaders(),
			Body:       fmt.Sprintf(`{"success":false,"error":"json marshal: %s"}`, err.Error()),
		}, nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    corsHeaders(),
		Body:       string(b),
	}, nil
}

// ErrorResponse is the failure shape every endpoint shares.
func ErrorResponse(statusCode int, msg string) (events.APIGatewayProxyResponse, error) {
	return APIResponse(statusCode, map[string]any{"success": false, "error": msg})
}

// Preflight answers a CORS OPTIONS request.
func Preflight() events.APIGatewayProxyResponse {
	h := corsHeaders()
	h["Access-Control-Allow-Methods"] = "POST, OPTIONS"
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: h, Body: "ok"}
}

func corsHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": CORSAllowHeaders,
	}
}
