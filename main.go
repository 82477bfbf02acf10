package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var (
	config *Config
)

func init() {
	var err error

	// Extract necessary environment variables
	timeoutEnv := os.Getenv("TIMEOUT")
	appVersion = os.Getenv("APP_VERSION")

	// Set default value if not set
	if timeoutEnv == "" {
		globalTimeout = 30
	} else {
		// Convert timeout to integer
		globalTimeout, err = strconv.Atoi(timeoutEnv)
		if err != nil {
			log.Fatalf("Failed to convert timeout environment variable to integer")
		}
	}

	// Read regulation-year parameters
	config, err = readConfig()
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	// Create new Echo object
	e := echo.New()

	// Add basic middleware to log all requests
	e.Use(middleware.Logger())

	// Configure elastic apm logging
	initAPM(e)

	// Sets CORS headers to allow all origins, but restrict HTTP method type
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	// Middleware to provide more control over response status for APM transactions
	// This must go after the Elastic APM middleware
	e.Use(filterError)

	// Adds a heartbeat handler
	e.GET("/heartbeat", heartbeat)

	// Creates API group to simplify middleware declaration
	engineGroup := e.Group("/engine")

	// Add a GET handler for presenting the engine operations available
	engineGroup.GET("", engineServices)

	// Pure engine operations over caller-supplied records
	engineGroup.POST("/score", scoreConvert)
	engineGroup.POST("/schedule", scheduleGenerate)
	engineGroup.POST("/overdue-sweep", overdueSweep)
	engineGroup.POST("/scb", scbEvaluate)
	engineGroup.POST("/rpm", rpmSummary)

	// Population report pulls the clinic snapshot from the records
	// service, so it requires a valid token
	engineGroup.POST("/eligibility", eligibilityReport, openId)

	// Start server
	e.Logger.Fatal(e.Start(":8000"))
}
