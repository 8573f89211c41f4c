//go:build integration

/*
Package test runs the campus backend against real postgres and kafka containers.

Run with

	go test -tags integration ./test/...
*/
package test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/campus/core/access"
	"github.com/relabs-tech/campus/core/backend"
	"github.com/relabs-tech/campus/core/client"
	"github.com/relabs-tech/campus/core/csql"
	"github.com/relabs-tech/campus/core/logger"
	"github.com/relabs-tech/campus/core/notifier"
)

const (
	jwtSecret         = "integration-secret"
	notificationTopic = "campus_changes"
	adminEmail        = "phtcon@ucsb.edu"
	userEmail         = "cgaucho@ucsb.edu"
)

var configurationJSON = `{
	"resources": [
	  {
		"resource": "HelpRequest",
		"path": "/api/helprequest",
		"fields": [
		  {"name": "requesterEmail", "type": "string"},
		  {"name": "teamId", "type": "string"},
		  {"name": "tableOrBreakoutRoom", "type": "string"},
		  {"name": "requestTime", "type": "datetime", "aliases": ["localDateTime"]},
		  {"name": "explanation", "type": "string"},
		  {"name": "solved", "type": "boolean"}
		]
	  },
	  {
		"resource": "UCSBDate",
		"path": "/api/ucsbdates",
		"fields": [
		  {"name": "quarterYYYYQ", "type": "string"},
		  {"name": "name", "type": "string"},
		  {"name": "localDateTime", "type": "datetime"}
		]
	  }
	]
}`

// IntegrationTestSuite starts postgres and kafka containers and serves the backend over HTTP
type IntegrationTestSuite struct {
	suite.Suite
	*backend.Backend
	srv *http.Server

	dbConn   *csql.DB
	router   *mux.Router
	notifier *notifier.Kafka

	network            testcontainers.Network
	kafkaContainer     testcontainers.Container
	zookeeperContainer testcontainers.Container
	postgresContainer  testcontainers.Container
	kafkaConn          *kafka.Conn
	kafkaAddr          string
	url                string
}

func (s *IntegrationTestSuite) createTopic(topic string, numPartitions int) error {
	if s.kafkaConn == nil {
		return fmt.Errorf("kafka connection is not established")
	}

	err := s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	return nil
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	// Create a shared Docker network for Kafka and Zookeeper
	networkName := "test-campus-network_" + fmt.Sprintf("%d", time.Now().Unix())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"postgres"}},
			WaitingFor:     wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.zookeeperContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-zookeeper:7.5.0",
			ExposedPorts: []string{"2181/tcp"},
			Env: map[string]string{
				"ZOOKEEPER_CLIENT_PORT": "2181",
				"ZOOKEEPER_TICK_TIME":   "2000",
			},
			WaitingFor:     wait.ForListeningPort("2181/tcp"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"zookeeper"}},
		},
		Started: true,
	})
	s.Require().NoError(err)

	kafkaC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-kafka:7.5.0",
			ExposedPorts: []string{"9092:9092/tcp"},
			Env: map[string]string{
				"KAFKA_BROKER_ID":                        "1",
				"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
				"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,EXTERNAL://0.0.0.0:9093",
				"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,EXTERNAL://kafka:9093",
				"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,EXTERNAL:PLAINTEXT",
				"KAFKA_INTER_BROKER_LISTENER_NAME":       "EXTERNAL",
				"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
			},
			WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"kafka"}},
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.kafkaContainer = kafkaC

	kafkaHost, err := kafkaC.Host(ctx)
	s.Require().NoError(err)
	kafkaPort, err := kafkaC.MappedPort(ctx, "9092")
	s.Require().NoError(err)
	s.kafkaAddr = fmt.Sprintf("%s:%s", kafkaHost, kafkaPort.Port())

	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)
	s.Require().NoError(s.createTopic(notificationTopic, 1))

	s.dbConn = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "_campus_integration_")
	s.dbConn.ClearSchema()

	s.router = mux.NewRouter()
	logger.AddRequestID(s.router)
	s.router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
		Secret:      jwtSecret,
		Issuer:      "campus",
		AdminEmails: []string{adminEmail},
		DB:          s.dbConn,
	}))

	s.notifier = notifier.NewKafka([]string{s.kafkaAddr}, notificationTopic)
	s.Backend = backend.New(&backend.Builder{
		Config:       configurationJSON,
		Router:       s.router,
		Repositories: backend.SQLRepositories(s.dbConn, true),
		Notifier:     s.notifier,
		CORS:         true,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.url = "http://" + listener.Addr().String()
	s.srv = &http.Server{Handler: s.router}
	go func() {
		err := s.srv.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			s.T().Errorf("Failed to start HTTP server: %v", err)
		}
	}()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.srv != nil {
		s.Require().NoError(s.srv.Shutdown(ctx))
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.kafkaConn != nil {
		s.kafkaConn.Close()
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}
	if s.kafkaContainer != nil {
		s.Require().NoError(s.kafkaContainer.Terminate(ctx))
	}
	if s.zookeeperContainer != nil {
		s.Require().NoError(s.zookeeperContainer.Terminate(ctx))
	}
	if s.postgresContainer != nil {
		s.Require().NoError(s.postgresContainer.Terminate(ctx))
	}
	if s.network != nil {
		s.Require().NoError(s.network.Remove(ctx))
	}
}

// token returns a signed token for email
func (s *IntegrationTestSuite) token(email string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"iss":   "campus",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	s.Require().NoError(err)
	return signed
}

// clientFor returns an HTTP client authenticated as email, or an anonymous client for ""
func (s *IntegrationTestSuite) clientFor(email string) client.Client {
	c := client.NewWithURL(s.url)
	if len(email) > 0 {
		c = c.WithToken(s.token(email))
	}
	return c
}
