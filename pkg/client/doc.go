/*
Package client is the CLI side of the daemon's status API.

	c, err := client.NewClient("127.0.0.1:7950")
	if err != nil {
		return err
	}
	defer c.Close()

	roles, err := c.ListRoles(ctx)

Errors are gRPC status errors; a missing role is codes.NotFound.
*/
package client
