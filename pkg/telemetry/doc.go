// Package telemetry provides observability instrumentation for featurekit.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and lifecycle event publishing into a
// single bundle that the lifecycle, hooks, dependency and permission layers
// accept as an optional collaborator.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	op := telemetry.StartOperation(tel.WithContext(ctx), "tree.boot")
//	op.Logger.Info().Str("node_id", "quotes").Msg("Initializing node")
//	op.End(err)
//
// # Tracing
//
//	ctx, span := tel.Tracer.StartNodeSpan(ctx, "quotes", "initialize")
//	defer span.End()
//
// Supported exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
// Metrics live on a private Prometheus registry exposed through Handler and
// Registry:
//
//   - node_initializations_total{result}
//   - node_setups_total{mode,result}
//   - tree_initialize_duration_seconds{result}
//   - hooks_registered{handler}
//   - hook_flushes_total{variant,direction}
//   - dependency_checks_total{handler,result}
//   - permission_cache_lookups_total{kind,result}
//   - permission_compile_duration_seconds{kind}
//   - errors_by_code_total{code}
//
// All recording methods tolerate a nil or disabled *Metrics.
//
// # Events
//
// The EventPublisher delivers lifecycle events synchronously and keeps a
// bounded history, which the CLI prints after an inspection run.
package telemetry
