package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"github.com/cyverse-de/configurate"
	l "github.com/cyverse-de/go-mod/logging"
	"github.com/cyverse-de/go-mod/otelutils"

	"github.com/cyverse-de/hub-gateway/api"
	"github.com/cyverse-de/hub-gateway/client/hub"
	"github.com/cyverse-de/hub-gateway/config"
	"github.com/cyverse-de/hub-gateway/logging"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logging.Log.WithFields(logrus.Fields{"package": "main"})

const serviceName = "hub-gateway"

func main() {
	var (
		cfgPath  = flag.String("config", "/etc/iplant/de/hub-gateway.yml", "The path to the config file")
		logLevel = flag.String("log-level", "info", "One of trace, debug, info, warn, error, fatal, or panic.")

		err error
		cfg *viper.Viper
	)

	flag.Parse()
	l.SetupLogging(*logLevel)

	var tracerCtx, cancel = context.WithCancel(context.Background())
	defer cancel()
	shutdown := otelutils.TracerProviderFromEnv(tracerCtx, serviceName, func(e error) { log.Fatal(e) })
	defer shutdown()

	if *cfgPath == "" {
		log.Fatal("--config must not be the empty string")
	}

	if cfg, err = configurate.Init(*cfgPath); err != nil {
		log.Fatal(err.Error())
	}

	c, err := config.NewFromViper(cfg)
	if err != nil {
		log.Fatal(err.Error())
	}

	// One hub client for the process lifetime; every request shares its
	// connection pool.
	hubClient := hub.NewHubClient(c.HubBase, c.HubAPIToken, c.VerifySSL, c.RequestTimeout)
	defer hubClient.Close()

	err = hubClient.Check(context.Background())
	if err != nil {
		log.Fatal(errors.Wrap(err, "Couldn't ping the hub"))
	} else {
		log.Info("Pinged the hub successfully")
	}

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())

	api.NewHandler(hubClient).RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
	log.Infof("Listening on %s", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}
	log.Fatal(srv.ListenAndServe())
}
