package main

//go:generate swag init -g cmd/resolver/main.go -o docs

// @title           Memetic Signal Resolver API
// @version         0.1.0
// @description     Signal resolution, MFS ledger, chain event ingest and operator controls.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
