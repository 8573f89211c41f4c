//go:build integration

package test

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
)

type CampusTestSuite struct {
	IntegrationTestSuite
}

func TestCampusTestSuite(t *testing.T) {
	suite.Run(t, &CampusTestSuite{})
}

func (s *CampusTestSuite) TestLifecycle() {
	admin := s.clientFor(adminEmail).Resource("/api/helprequest")
	user := s.clientFor(userEmail).Resource("/api/helprequest")

	var all []map[string]interface{}
	status, err := user.List(&all)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, status)
	s.Empty(all)

	var created map[string]interface{}
	_, err = admin.Create(map[string]string{
		"requesterEmail":      userEmail,
		"teamId":              "s22-5pm-3",
		"tableOrBreakoutRoom": "7",
		"requestTime":         "2022-04-20T17:35",
		"explanation":         "Need help with Swagger-ui",
		"solved":              "false",
	}, &created)
	s.Require().NoError(err)
	s.Equal("2022-04-20T17:35:00", created["requestTime"])
	id := int64(created["id"].(float64))

	var read map[string]interface{}
	_, err = user.Read(id, &read)
	s.Require().NoError(err)
	s.Equal(created, read)

	created["solved"] = true
	var updated map[string]interface{}
	_, err = admin.Update(id, created, &updated)
	s.Require().NoError(err)
	s.Equal(true, updated["solved"])

	var deleted map[string]string
	_, err = admin.Delete(id, &deleted)
	s.Require().NoError(err)
	s.Equal("HelpRequest with id "+strconv.FormatInt(id, 10)+" deleted", deleted["message"])

	status, _ = user.Read(id, nil)
	s.Equal(http.StatusNotFound, status)
}

func (s *CampusTestSuite) TestAuthorization() {
	anonymous := s.clientFor("").Resource("/api/ucsbdates")
	user := s.clientFor(userEmail).Resource("/api/ucsbdates")
	fields := map[string]string{"quarterYYYYQ": "20221", "name": "W22", "localDateTime": "2022-01-03T00:00:00"}

	status, _ := anonymous.List(nil)
	s.Equal(http.StatusForbidden, status)
	status, _ = user.Create(fields, nil)
	s.Equal(http.StatusForbidden, status)
	status, _ = user.Delete(1, nil)
	s.Equal(http.StatusForbidden, status)

	status, _ = s.clientFor("").WithToken("garbage").Resource("/api/ucsbdates").List(nil)
	s.Equal(http.StatusUnauthorized, status)
}

func (s *CampusTestSuite) TestNotifications() {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   []string{s.kafkaAddr},
		Topic:     notificationTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()
	s.Require().NoError(reader.SetOffset(kafka.FirstOffset))

	dates := s.clientFor(adminEmail).Resource("/api/ucsbdates")
	var created map[string]interface{}
	_, err := dates.Create(map[string]string{"quarterYYYYQ": "20222", "name": "S22", "localDateTime": "2022-03-28T00:00:00"}, &created)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		msg, err := reader.ReadMessage(ctx)
		s.Require().NoError(err)
		if string(msg.Key) != "UCSBDate" || !strings.Contains(string(msg.Value), `"name":"S22"`) {
			continue
		}
		s.Equal("operation", msg.Headers[0].Key)
		s.Equal("create", string(msg.Headers[0].Value))
		return
	}
}
