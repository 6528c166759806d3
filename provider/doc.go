// Package provider holds the contracts shared between a database provider and
// the application embedding it.
//
// An application describes where to connect with a Descriptor, configures and
// connects a Database, then leases Conn values from it:
//
//	db := postgres.New(postgres.WithLogger(logger))
//	if err := db.Setup(db.DefaultSetup()); err != nil {
//		return err
//	}
//	if err := db.Connect(ctx, descriptor); err != nil {
//		return err
//	}
//	conn, err := db.AcquireConnection(ctx)
//	if err != nil {
//		return err
//	}
//	defer conn.Release()
//
// Concrete implementations live in subpackages such as postgres.
package provider
